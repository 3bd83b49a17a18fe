// Package memory implements every store interface in process memory. It
// backs the httpapi test harness and the dev mode of cmd/api; production
// runs on the pg store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"covena.org/internal/auth"
	"covena.org/internal/directory"
	"covena.org/internal/ids"
	"covena.org/internal/violation"
)

// Store holds all records behind one mutex. Good enough for tests and a
// single dev process.
type Store struct {
	mu sync.Mutex

	identities    map[string]auth.Identity
	refreshTokens map[string]*auth.RefreshToken

	associations map[string]directory.Association
	profiles     map[string]directory.Profile
	memberships  map[string]directory.Membership
	roles        map[string]directory.Role
	assignments  map[string]directory.RoleAssignment

	violations map[string]violation.Violation
}

var (
	_ auth.IdentityStore     = (*Store)(nil)
	_ auth.RefreshTokenStore = (*Store)(nil)
	_ directory.Store        = (*Store)(nil)
	_ violation.Store        = (*Store)(nil)
)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		identities:    map[string]auth.Identity{},
		refreshTokens: map[string]*auth.RefreshToken{},
		associations:  map[string]directory.Association{},
		profiles:      map[string]directory.Profile{},
		memberships:   map[string]directory.Membership{},
		roles:         map[string]directory.Role{},
		assignments:   map[string]directory.RoleAssignment{},
		violations:    map[string]violation.Violation{},
	}
}

// --- auth.IdentityStore ---

func (s *Store) CreateIdentity(_ context.Context, email, passwordHash, status string) (auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ident := range s.identities {
		if ident.Email == email {
			return auth.Identity{}, auth.ErrConflict
		}
	}
	now := time.Now().UTC()
	ident := auth.Identity{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.identities[ident.ID] = ident
	return ident, nil
}

func (s *Store) GetIdentity(_ context.Context, id string) (auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return auth.Identity{}, auth.ErrNotFound
	}
	return ident, nil
}

func (s *Store) GetIdentityByEmail(_ context.Context, email string) (auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ident := range s.identities {
		if ident.Email == email {
			return ident, nil
		}
	}
	return auth.Identity{}, auth.ErrNotFound
}

func (s *Store) DeleteIdentity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.identities, id)
	return nil
}

// --- auth.RefreshTokenStore ---

func (s *Store) CreateRefreshToken(_ context.Context, tok *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.refreshTokens[cp.ID] = &cp
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, id string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.refreshTokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.refreshTokens[id]
	if !ok {
		return auth.ErrNotFound
	}
	tok.Revoked = true
	return nil
}

func (s *Store) RevokeRefreshTokensByIdentity(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.refreshTokens {
		if tok.IdentityID == identityID {
			tok.Revoked = true
		}
	}
	return nil
}

// --- directory.Store: associations ---

func (s *Store) CreateAssociation(_ context.Context, a directory.Association) (directory.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.associations {
		if !existing.Deleted && strings.EqualFold(existing.Name, a.Name) {
			return directory.Association{}, directory.ErrConflict
		}
	}
	now := time.Now().UTC()
	a.ID = ids.New()
	a.Deleted = false
	a.CreatedAt = now
	a.UpdatedAt = now
	s.associations[a.ID] = a
	return a, nil
}

func (s *Store) ListAssociations(_ context.Context) ([]directory.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []directory.Association
	for _, a := range s.associations {
		if !a.Deleted {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetAssociation(_ context.Context, id string) (directory.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.associations[id]
	if !ok || a.Deleted {
		return directory.Association{}, directory.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdateAssociation(_ context.Context, id string, upd directory.AssociationUpdate) (directory.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.associations[id]
	if !ok || a.Deleted {
		return directory.Association{}, directory.ErrNotFound
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.Abbreviation != nil {
		a.Abbreviation = *upd.Abbreviation
	}
	if upd.Street != nil {
		a.Street = *upd.Street
	}
	if upd.City != nil {
		a.City = *upd.City
	}
	if upd.State != nil {
		a.State = *upd.State
	}
	if upd.Zip != nil {
		a.Zip = *upd.Zip
	}
	if upd.ContactEmail != nil {
		a.ContactEmail = *upd.ContactEmail
	}
	if upd.ContactPhone != nil {
		a.ContactPhone = *upd.ContactPhone
	}
	a.UpdatedAt = time.Now().UTC()
	s.associations[id] = a
	return a, nil
}

func (s *Store) SoftDeleteAssociation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.associations[id]
	if !ok || a.Deleted {
		return directory.ErrNotFound
	}
	a.Deleted = true
	a.UpdatedAt = time.Now().UTC()
	s.associations[id] = a
	return nil
}

// --- directory.Store: profiles ---

func (s *Store) CreateProfile(_ context.Context, p directory.Profile) (directory.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.profiles {
		if existing.IdentityID == p.IdentityID {
			return directory.Profile{}, directory.ErrConflict
		}
	}
	p.ID = ids.New()
	p.CreatedAt = time.Now().UTC()
	s.profiles[p.ID] = p
	return p, nil
}

func (s *Store) GetProfileByIdentity(_ context.Context, identityID string) (directory.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.IdentityID == identityID {
			return p, nil
		}
	}
	return directory.Profile{}, directory.ErrNotFound
}

func (s *Store) UpdateProfile(_ context.Context, profileID string, upd directory.ProfileUpdate) (directory.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return directory.Profile{}, directory.ErrNotFound
	}
	if upd.FirstName != nil {
		p.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		p.LastName = *upd.LastName
	}
	if upd.HomeAssociationID != nil {
		p.HomeAssociationID = *upd.HomeAssociationID
	}
	s.profiles[profileID] = p
	return p, nil
}

func (s *Store) DeleteProfileByIdentity(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.profiles {
		if p.IdentityID == identityID {
			delete(s.profiles, id)
			return nil
		}
	}
	return directory.ErrNotFound
}

// --- directory.Store: memberships ---

func (s *Store) CreateMembership(_ context.Context, identityID, associationID string) (directory.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.associations[associationID]; !ok || a.Deleted {
		return directory.Membership{}, directory.ErrNotFound
	}
	for _, m := range s.memberships {
		if m.IdentityID == identityID && m.AssociationID == associationID && m.Active {
			return directory.Membership{}, directory.ErrConflict
		}
	}
	m := directory.Membership{
		ID:            ids.New(),
		IdentityID:    identityID,
		AssociationID: associationID,
		Active:        true,
		JoinedAt:      time.Now().UTC(),
	}
	s.memberships[m.ID] = m
	return m, nil
}

func (s *Store) ListMemberships(_ context.Context, identityID string) ([]directory.MembershipEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []directory.MembershipEntry
	for _, m := range s.memberships {
		if m.IdentityID != identityID || !m.Active {
			continue
		}
		a, ok := s.associations[m.AssociationID]
		if !ok || a.Deleted {
			continue
		}
		out = append(out, directory.MembershipEntry{Membership: m, Association: a})
	}
	sort.Slice(out, func(i, j int) bool {
		mi, mj := out[i].Membership, out[j].Membership
		if !mi.JoinedAt.Equal(mj.JoinedAt) {
			return mi.JoinedAt.Before(mj.JoinedAt)
		}
		return mi.ID < mj.ID
	})
	return out, nil
}

func (s *Store) DeactivateMembership(_ context.Context, identityID, associationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memberships {
		if m.IdentityID == identityID && m.AssociationID == associationID && m.Active {
			m.Active = false
			s.memberships[id] = m
			return nil
		}
	}
	return directory.ErrNotFound
}

func (s *Store) DeleteMembershipsByIdentity(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memberships {
		if m.IdentityID == identityID {
			delete(s.memberships, id)
		}
	}
	return nil
}

// --- directory.Store: roles ---

func (s *Store) CreateRole(_ context.Context, role directory.Role) (directory.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, role.Name) && existing.AssociationID == role.AssociationID {
			return directory.Role{}, directory.ErrConflict
		}
	}
	now := time.Now().UTC()
	role.ID = ids.New()
	role.CreatedAt = now
	role.UpdatedAt = now
	role.Permissions = append([]string(nil), role.Permissions...)
	s.roles[role.ID] = role
	return role, nil
}

func (s *Store) ListRoles(_ context.Context, associationID string) ([]directory.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []directory.Role
	for _, role := range s.roles {
		if associationID == "" || role.System || role.AssociationID == associationID {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetRole(_ context.Context, roleID string) (directory.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return directory.Role{}, directory.ErrNotFound
	}
	return role, nil
}

func (s *Store) UpdateRole(_ context.Context, roleID string, upd directory.RoleUpdate) (directory.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return directory.Role{}, directory.ErrNotFound
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	role.UpdatedAt = time.Now().UTC()
	s.roles[roleID] = role
	return role, nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID string, permissions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return directory.ErrNotFound
	}
	role.Permissions = append([]string(nil), permissions...)
	role.UpdatedAt = time.Now().UTC()
	s.roles[roleID] = role
	return nil
}

func (s *Store) DeleteRole(_ context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return directory.ErrNotFound
	}
	delete(s.roles, roleID)
	for id, a := range s.assignments {
		if a.RoleID == roleID {
			delete(s.assignments, id)
		}
	}
	return nil
}

// --- directory.Store: assignments ---

func (s *Store) AssignRole(_ context.Context, identityID, roleID, assignedBy string) (directory.RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identityID]; !ok {
		return directory.RoleAssignment{}, directory.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return directory.RoleAssignment{}, directory.ErrNotFound
	}
	for _, a := range s.assignments {
		if a.IdentityID == identityID && a.RoleID == roleID {
			return directory.RoleAssignment{}, directory.ErrConflict
		}
	}
	a := directory.RoleAssignment{
		ID:         ids.New(),
		IdentityID: identityID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
		AssignedAt: time.Now().UTC(),
	}
	s.assignments[a.ID] = a
	return a, nil
}

func (s *Store) RemoveRoleAssignment(_ context.Context, identityID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.assignments {
		if a.IdentityID == identityID && a.RoleID == roleID {
			delete(s.assignments, id)
			return nil
		}
	}
	return directory.ErrNotFound
}

func (s *Store) ListAssignedRoles(_ context.Context, identityID string) ([]directory.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []directory.Role
	for _, a := range s.assignments {
		if a.IdentityID != identityID {
			continue
		}
		if role, ok := s.roles[a.RoleID]; ok {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteAssignmentsByIdentity(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.assignments {
		if a.IdentityID == identityID {
			delete(s.assignments, id)
		}
	}
	return nil
}

// --- violation.Store ---

func (s *Store) CreateViolation(_ context.Context, v violation.Violation) (violation.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.associations[v.AssociationID]; !ok || a.Deleted {
		return violation.Violation{}, violation.ErrNotFound
	}
	now := time.Now().UTC()
	v.ID = ids.New()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.violations[v.ID] = v
	return v, nil
}

func (s *Store) GetViolation(_ context.Context, associationID, id string) (violation.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.violations[id]
	if !ok || v.AssociationID != associationID {
		return violation.Violation{}, violation.ErrNotFound
	}
	return v, nil
}

func (s *Store) ListViolations(_ context.Context, associationID string, filter violation.ListFilter) ([]violation.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []violation.Violation
	for _, v := range s.violations {
		if v.AssociationID != associationID {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if filter.Category != "" && v.Category != filter.Category {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateViolation(_ context.Context, associationID, id string, upd violation.Update) (violation.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.violations[id]
	if !ok || v.AssociationID != associationID {
		return violation.Violation{}, violation.ErrNotFound
	}
	if upd.Category != nil {
		v.Category = *upd.Category
	}
	if upd.Title != nil {
		v.Title = *upd.Title
	}
	if upd.Description != nil {
		v.Description = *upd.Description
	}
	v.UpdatedAt = time.Now().UTC()
	s.violations[id] = v
	return v, nil
}

func (s *Store) SetViolationStatus(_ context.Context, associationID, id, status, resolvedBy string, resolvedAt *time.Time) (violation.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.violations[id]
	if !ok || v.AssociationID != associationID {
		return violation.Violation{}, violation.ErrNotFound
	}
	v.Status = status
	v.ResolvedBy = resolvedBy
	v.ResolvedAt = resolvedAt
	v.UpdatedAt = time.Now().UTC()
	s.violations[id] = v
	return v, nil
}
