package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service validates and normalizes directory operations before they hit
// the store.
type Service struct {
	store Store
}

// NewService constructs Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) CreateAssociation(ctx context.Context, a Association) (Association, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return Association{}, fmt.Errorf("%w: association name is required", ErrInvalidInput)
	}
	a.Abbreviation = strings.TrimSpace(a.Abbreviation)
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Zip = strings.TrimSpace(a.Zip)
	a.ContactEmail = strings.TrimSpace(strings.ToLower(a.ContactEmail))
	a.ContactPhone = strings.TrimSpace(a.ContactPhone)
	if a.ContactEmail != "" && !strings.Contains(a.ContactEmail, "@") {
		return Association{}, fmt.Errorf("%w: contact email is malformed", ErrInvalidInput)
	}
	return s.store.CreateAssociation(ctx, a)
}

func (s *Service) ListAssociations(ctx context.Context) ([]Association, error) {
	return s.store.ListAssociations(ctx)
}

func (s *Service) GetAssociation(ctx context.Context, id string) (Association, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Association{}, fmt.Errorf("%w: association_id is required", ErrInvalidInput)
	}
	return s.store.GetAssociation(ctx, id)
}

func (s *Service) UpdateAssociation(ctx context.Context, id string, upd AssociationUpdate) (Association, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Association{}, fmt.Errorf("%w: association_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return Association{}, fmt.Errorf("%w: association name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	if upd.ContactEmail != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.ContactEmail))
		if email != "" && !strings.Contains(email, "@") {
			return Association{}, fmt.Errorf("%w: contact email is malformed", ErrInvalidInput)
		}
		upd.ContactEmail = &email
	}
	return s.store.UpdateAssociation(ctx, id, upd)
}

func (s *Service) DeleteAssociation(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: association_id is required", ErrInvalidInput)
	}
	return s.store.SoftDeleteAssociation(ctx, id)
}

func (s *Service) GetProfileByIdentity(ctx context.Context, identityID string) (Profile, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return Profile{}, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	return s.store.GetProfileByIdentity(ctx, identityID)
}

func (s *Service) UpdateProfile(ctx context.Context, profileID string, upd ProfileUpdate) (Profile, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return Profile{}, fmt.Errorf("%w: profile_id is required", ErrInvalidInput)
	}
	if upd.FirstName != nil {
		name := strings.TrimSpace(*upd.FirstName)
		if name == "" {
			return Profile{}, fmt.Errorf("%w: first name is required", ErrInvalidInput)
		}
		upd.FirstName = &name
	}
	if upd.LastName != nil {
		name := strings.TrimSpace(*upd.LastName)
		if name == "" {
			return Profile{}, fmt.Errorf("%w: last name is required", ErrInvalidInput)
		}
		upd.LastName = &name
	}
	return s.store.UpdateProfile(ctx, profileID, upd)
}

func (s *Service) CreateMembership(ctx context.Context, identityID, associationID string) (Membership, error) {
	identityID = strings.TrimSpace(identityID)
	associationID = strings.TrimSpace(associationID)
	if identityID == "" || associationID == "" {
		return Membership{}, fmt.Errorf("%w: identity_id and association_id are required", ErrInvalidInput)
	}
	return s.store.CreateMembership(ctx, identityID, associationID)
}

func (s *Service) ListMemberships(ctx context.Context, identityID string) ([]MembershipEntry, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	return s.store.ListMemberships(ctx, identityID)
}

func (s *Service) DeactivateMembership(ctx context.Context, identityID, associationID string) error {
	identityID = strings.TrimSpace(identityID)
	associationID = strings.TrimSpace(associationID)
	if identityID == "" || associationID == "" {
		return fmt.Errorf("%w: identity_id and association_id are required", ErrInvalidInput)
	}
	return s.store.DeactivateMembership(ctx, identityID, associationID)
}

func (s *Service) CreateRole(ctx context.Context, role Role) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role.Description = strings.TrimSpace(role.Description)
	role.AssociationID = strings.TrimSpace(role.AssociationID)
	if role.System && role.AssociationID != "" {
		return Role{}, fmt.Errorf("%w: system roles cannot be scoped to an association", ErrInvalidInput)
	}
	if !role.System && role.AssociationID == "" {
		return Role{}, fmt.Errorf("%w: non-system roles require an owning association", ErrInvalidInput)
	}
	perms, err := normalizePermissions(role.Permissions)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return s.store.CreateRole(ctx, role)
}

func (s *Service) ListRoles(ctx context.Context, associationID string) ([]Role, error) {
	return s.store.ListRoles(ctx, strings.TrimSpace(associationID))
}

func (s *Service) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, roleID)
}

func (s *Service) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return s.store.UpdateRole(ctx, roleID, upd)
}

func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissions []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	perms, err := normalizePermissions(permissions)
	if err != nil {
		return err
	}
	return s.store.SetRolePermissions(ctx, roleID, perms)
}

func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, roleID)
}

func (s *Service) AssignRole(ctx context.Context, identityID, roleID, assignedBy string) (RoleAssignment, error) {
	identityID = strings.TrimSpace(identityID)
	roleID = strings.TrimSpace(roleID)
	if identityID == "" || roleID == "" {
		return RoleAssignment{}, fmt.Errorf("%w: identity_id and role_id are required", ErrInvalidInput)
	}
	return s.store.AssignRole(ctx, identityID, roleID, strings.TrimSpace(assignedBy))
}

func (s *Service) RemoveRoleAssignment(ctx context.Context, identityID, roleID string) error {
	identityID = strings.TrimSpace(identityID)
	roleID = strings.TrimSpace(roleID)
	if identityID == "" || roleID == "" {
		return fmt.Errorf("%w: identity_id and role_id are required", ErrInvalidInput)
	}
	return s.store.RemoveRoleAssignment(ctx, identityID, roleID)
}

func (s *Service) ListAssignedRoles(ctx context.Context, identityID string) ([]Role, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("%w: identity_id is required", ErrInvalidInput)
	}
	return s.store.ListAssignedRoles(ctx, identityID)
}

// normalizePermissions trims, de-duplicates, and validates permission keys
// against the closed enumeration.
func normalizePermissions(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !ValidPermission(v) {
			return nil, fmt.Errorf("%w: unknown permission %s", ErrInvalidInput, v)
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result, nil
}
