package directory

import "time"

// Association is the tenant: one homeowners association whose data is
// isolated from every other association.
type Association struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Abbreviation string    `json:"abbreviation,omitempty"`
	Street       string    `json:"street,omitempty"`
	City         string    `json:"city,omitempty"`
	State        string    `json:"state,omitempty"`
	Zip          string    `json:"zip,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	Deleted      bool      `json:"deleted,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile holds the person-facing attributes for one identity.
type Profile struct {
	ID                string    `json:"id"`
	IdentityID        string    `json:"identity_id"`
	HomeAssociationID string    `json:"home_association_id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	CreatedAt         time.Time `json:"created_at"`
}

// Membership links an identity to an association it may access.
type Membership struct {
	ID            string    `json:"id"`
	IdentityID    string    `json:"identity_id"`
	AssociationID string    `json:"association_id"`
	Active        bool      `json:"active"`
	JoinedAt      time.Time `json:"joined_at"`
}

// MembershipEntry pairs a membership with its association record for display.
type MembershipEntry struct {
	Membership  Membership  `json:"membership"`
	Association Association `json:"association"`
}

// Role bundles permission keys. System roles apply across all
// associations; scoped roles only within AssociationID.
type Role struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Permissions   []string  `json:"permissions"`
	System        bool      `json:"system"`
	AssociationID string    `json:"association_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AppliesTo reports whether the role grants anything within the given association.
func (r Role) AppliesTo(associationID string) bool {
	if r.System {
		return true
	}
	return r.AssociationID != "" && r.AssociationID == associationID
}

// RoleAssignment gives an identity a role.
type RoleAssignment struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	RoleID     string    `json:"role_id"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AssociationUpdate carries optional field updates.
type AssociationUpdate struct {
	Name         *string
	Abbreviation *string
	Street       *string
	City         *string
	State        *string
	Zip          *string
	ContactEmail *string
	ContactPhone *string
}

// ProfileUpdate carries optional field updates.
type ProfileUpdate struct {
	FirstName         *string
	LastName          *string
	HomeAssociationID *string
}

// RoleUpdate carries optional field updates.
type RoleUpdate struct {
	Name        *string
	Description *string
}
