package directory

import "context"

// Store describes persistence operations required by the directory subsystem.
type Store interface {
	CreateAssociation(ctx context.Context, a Association) (Association, error)
	ListAssociations(ctx context.Context) ([]Association, error)
	GetAssociation(ctx context.Context, id string) (Association, error)
	UpdateAssociation(ctx context.Context, id string, upd AssociationUpdate) (Association, error)
	SoftDeleteAssociation(ctx context.Context, id string) error

	CreateProfile(ctx context.Context, p Profile) (Profile, error)
	GetProfileByIdentity(ctx context.Context, identityID string) (Profile, error)
	UpdateProfile(ctx context.Context, profileID string, upd ProfileUpdate) (Profile, error)
	DeleteProfileByIdentity(ctx context.Context, identityID string) error

	CreateMembership(ctx context.Context, identityID, associationID string) (Membership, error)
	// ListMemberships returns active memberships joined with their
	// associations, ordered by joined_at then id so display order is
	// deterministic across loads.
	ListMemberships(ctx context.Context, identityID string) ([]MembershipEntry, error)
	DeactivateMembership(ctx context.Context, identityID, associationID string) error
	DeleteMembershipsByIdentity(ctx context.Context, identityID string) error

	CreateRole(ctx context.Context, role Role) (Role, error)
	ListRoles(ctx context.Context, associationID string) ([]Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error)
	SetRolePermissions(ctx context.Context, roleID string, permissions []string) error
	DeleteRole(ctx context.Context, roleID string) error

	AssignRole(ctx context.Context, identityID, roleID, assignedBy string) (RoleAssignment, error)
	RemoveRoleAssignment(ctx context.Context, identityID, roleID string) error
	// ListAssignedRoles returns the full role records currently assigned
	// to the identity, across all scopes.
	ListAssignedRoles(ctx context.Context, identityID string) ([]Role, error)
	DeleteAssignmentsByIdentity(ctx context.Context, identityID string) error
}
