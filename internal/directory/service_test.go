package directory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covena.org/internal/auth"
)

// fakeDirStore is a minimal in-memory Store for service and provisioner
// tests. Behaviors that matter here: duplicate active memberships
// conflict, deleted associations disappear from reads.
type fakeDirStore struct {
	seq          int
	associations map[string]Association
	profiles     map[string]Profile
	memberships  map[string]Membership
	roles        map[string]Role
	assignments  map[string]RoleAssignment

	failProfile    bool
	failMembership bool
}

func newFakeDirStore() *fakeDirStore {
	return &fakeDirStore{
		associations: map[string]Association{},
		profiles:     map[string]Profile{},
		memberships:  map[string]Membership{},
		roles:        map[string]Role{},
		assignments:  map[string]RoleAssignment{},
	}
}

func (f *fakeDirStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeDirStore) CreateAssociation(_ context.Context, a Association) (Association, error) {
	a.ID = f.nextID("assoc")
	f.associations[a.ID] = a
	return a, nil
}

func (f *fakeDirStore) ListAssociations(_ context.Context) ([]Association, error) {
	var out []Association
	for _, a := range f.associations {
		if !a.Deleted {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeDirStore) GetAssociation(_ context.Context, id string) (Association, error) {
	a, ok := f.associations[id]
	if !ok || a.Deleted {
		return Association{}, fmt.Errorf("%w: association %s", ErrNotFound, id)
	}
	return a, nil
}

func (f *fakeDirStore) UpdateAssociation(ctx context.Context, id string, upd AssociationUpdate) (Association, error) {
	a, err := f.GetAssociation(ctx, id)
	if err != nil {
		return Association{}, err
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.ContactEmail != nil {
		a.ContactEmail = *upd.ContactEmail
	}
	f.associations[id] = a
	return a, nil
}

func (f *fakeDirStore) SoftDeleteAssociation(ctx context.Context, id string) error {
	a, err := f.GetAssociation(ctx, id)
	if err != nil {
		return err
	}
	a.Deleted = true
	f.associations[id] = a
	return nil
}

func (f *fakeDirStore) CreateProfile(_ context.Context, p Profile) (Profile, error) {
	if f.failProfile {
		return Profile{}, fmt.Errorf("profiles table is on fire")
	}
	for _, existing := range f.profiles {
		if existing.IdentityID == p.IdentityID {
			return Profile{}, fmt.Errorf("%w: profile exists", ErrConflict)
		}
	}
	p.ID = f.nextID("prof")
	f.profiles[p.ID] = p
	return p, nil
}

func (f *fakeDirStore) GetProfileByIdentity(_ context.Context, identityID string) (Profile, error) {
	for _, p := range f.profiles {
		if p.IdentityID == identityID {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: profile for %s", ErrNotFound, identityID)
}

func (f *fakeDirStore) UpdateProfile(_ context.Context, profileID string, upd ProfileUpdate) (Profile, error) {
	p, ok := f.profiles[profileID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: profile %s", ErrNotFound, profileID)
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
	f.profiles[profileID] = p
	return p, nil
}

func (f *fakeDirStore) DeleteProfileByIdentity(_ context.Context, identityID string) error {
	for id, p := range f.profiles {
		if p.IdentityID == identityID {
			delete(f.profiles, id)
			return nil
		}
	}
	return fmt.Errorf("%w: profile for %s", ErrNotFound, identityID)
}

func (f *fakeDirStore) CreateMembership(_ context.Context, identityID, associationID string) (Membership, error) {
	if f.failMembership {
		return Membership{}, fmt.Errorf("memberships table is on fire")
	}
	for _, m := range f.memberships {
		if m.IdentityID == identityID && m.AssociationID == associationID && m.Active {
			return Membership{}, fmt.Errorf("%w: membership exists", ErrConflict)
		}
	}
	m := Membership{ID: f.nextID("memb"), IdentityID: identityID, AssociationID: associationID, Active: true}
	f.memberships[m.ID] = m
	return m, nil
}

func (f *fakeDirStore) ListMemberships(_ context.Context, identityID string) ([]MembershipEntry, error) {
	var out []MembershipEntry
	for _, m := range f.memberships {
		if m.IdentityID != identityID || !m.Active {
			continue
		}
		a, ok := f.associations[m.AssociationID]
		if !ok || a.Deleted {
			continue
		}
		out = append(out, MembershipEntry{Membership: m, Association: a})
	}
	return out, nil
}

func (f *fakeDirStore) DeactivateMembership(_ context.Context, identityID, associationID string) error {
	for id, m := range f.memberships {
		if m.IdentityID == identityID && m.AssociationID == associationID && m.Active {
			m.Active = false
			f.memberships[id] = m
			return nil
		}
	}
	return fmt.Errorf("%w: membership", ErrNotFound)
}

func (f *fakeDirStore) DeleteMembershipsByIdentity(_ context.Context, identityID string) error {
	for id, m := range f.memberships {
		if m.IdentityID == identityID {
			delete(f.memberships, id)
		}
	}
	return nil
}

func (f *fakeDirStore) CreateRole(_ context.Context, role Role) (Role, error) {
	role.ID = f.nextID("role")
	f.roles[role.ID] = role
	return role, nil
}

func (f *fakeDirStore) ListRoles(_ context.Context, associationID string) ([]Role, error) {
	var out []Role
	for _, r := range f.roles {
		if associationID == "" || r.System || r.AssociationID == associationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDirStore) GetRole(_ context.Context, roleID string) (Role, error) {
	r, ok := f.roles[roleID]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	return r, nil
}

func (f *fakeDirStore) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error) {
	r, err := f.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	f.roles[roleID] = r
	return r, nil
}

func (f *fakeDirStore) SetRolePermissions(ctx context.Context, roleID string, permissions []string) error {
	r, err := f.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	r.Permissions = permissions
	f.roles[roleID] = r
	return nil
}

func (f *fakeDirStore) DeleteRole(_ context.Context, roleID string) error {
	if _, ok := f.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	delete(f.roles, roleID)
	return nil
}

func (f *fakeDirStore) AssignRole(_ context.Context, identityID, roleID, assignedBy string) (RoleAssignment, error) {
	if _, ok := f.roles[roleID]; !ok {
		return RoleAssignment{}, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	for _, a := range f.assignments {
		if a.IdentityID == identityID && a.RoleID == roleID {
			return RoleAssignment{}, fmt.Errorf("%w: already assigned", ErrConflict)
		}
	}
	a := RoleAssignment{ID: f.nextID("asgn"), IdentityID: identityID, RoleID: roleID, AssignedBy: assignedBy}
	f.assignments[a.ID] = a
	return a, nil
}

func (f *fakeDirStore) RemoveRoleAssignment(_ context.Context, identityID, roleID string) error {
	for id, a := range f.assignments {
		if a.IdentityID == identityID && a.RoleID == roleID {
			delete(f.assignments, id)
			return nil
		}
	}
	return fmt.Errorf("%w: assignment", ErrNotFound)
}

func (f *fakeDirStore) ListAssignedRoles(_ context.Context, identityID string) ([]Role, error) {
	var out []Role
	for _, a := range f.assignments {
		if a.IdentityID != identityID {
			continue
		}
		if r, ok := f.roles[a.RoleID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeDirStore) DeleteAssignmentsByIdentity(_ context.Context, identityID string) error {
	for id, a := range f.assignments {
		if a.IdentityID == identityID {
			delete(f.assignments, id)
		}
	}
	return nil
}

var _ Store = (*fakeDirStore)(nil)

func newTestDirectory(t *testing.T) (*Service, *fakeDirStore) {
	t.Helper()
	store := newFakeDirStore()
	svc, err := NewService(store)
	require.NoError(t, err)
	return svc, store
}

func TestCreateAssociationValidation(t *testing.T) {
	svc, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := svc.CreateAssociation(ctx, Association{Name: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateAssociation(ctx, Association{Name: "Alder Grove", ContactEmail: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	a, err := svc.CreateAssociation(ctx, Association{Name: "  Alder Grove  ", ContactEmail: "Board@AlderGrove.example"})
	require.NoError(t, err)
	assert.Equal(t, "Alder Grove", a.Name)
	assert.Equal(t, "board@aldergrove.example", a.ContactEmail)
}

func TestDeleteAssociationHidesIt(t *testing.T) {
	svc, _ := newTestDirectory(t)
	ctx := context.Background()

	a, err := svc.CreateAssociation(ctx, Association{Name: "Alder Grove"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAssociation(ctx, a.ID))

	_, err = svc.GetAssociation(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := svc.ListAssociations(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateRoleScopeRules(t *testing.T) {
	svc, _ := newTestDirectory(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, Role{Name: "broken", System: true, AssociationID: "assoc-a"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateRole(ctx, Role{Name: "floating"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateRole(ctx, Role{Name: "bad-perms", AssociationID: "assoc-a", Permissions: []string{"launch_missiles"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	role, err := svc.CreateRole(ctx, Role{
		Name:          "board",
		AssociationID: "assoc-a",
		Permissions:   []string{PermViewViolations, PermViewViolations, " " + PermManageViolations + " "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{PermViewViolations, PermManageViolations}, role.Permissions)
}

func TestRoleAppliesTo(t *testing.T) {
	system := Role{System: true}
	scoped := Role{AssociationID: "assoc-a"}
	orphan := Role{}

	assert.True(t, system.AppliesTo("assoc-a"))
	assert.True(t, system.AppliesTo("assoc-b"))
	assert.True(t, scoped.AppliesTo("assoc-a"))
	assert.False(t, scoped.AppliesTo("assoc-b"))
	assert.False(t, orphan.AppliesTo(""))
}

func TestDuplicateMembershipConflicts(t *testing.T) {
	svc, store := newTestDirectory(t)
	ctx := context.Background()

	a, err := svc.CreateAssociation(ctx, Association{Name: "Alder Grove"})
	require.NoError(t, err)

	_, err = svc.CreateMembership(ctx, "ident-1", a.ID)
	require.NoError(t, err)

	_, err = svc.CreateMembership(ctx, "ident-1", a.ID)
	assert.ErrorIs(t, err, ErrConflict)

	// A deactivated membership frees the slot.
	require.NoError(t, svc.DeactivateMembership(ctx, "ident-1", a.ID))
	_, err = svc.CreateMembership(ctx, "ident-1", a.ID)
	require.NoError(t, err)

	entries, err := store.ListMemberships(ctx, "ident-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSetRolePermissionsNormalizes(t *testing.T) {
	svc, store := newTestDirectory(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, Role{Name: "board", AssociationID: "assoc-a"})
	require.NoError(t, err)

	err = svc.SetRolePermissions(ctx, role.ID, []string{"nope"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = svc.SetRolePermissions(ctx, role.ID, []string{PermViewMembers, "", PermViewMembers})
	require.NoError(t, err)

	got, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{PermViewMembers}, got.Permissions)
}

// auth.IdentityStore fake shared with provisioner tests.
type fakeIdentityStore struct {
	seq        int
	identities map[string]auth.Identity
	deleted    []string
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{identities: map[string]auth.Identity{}}
}

func (f *fakeIdentityStore) CreateIdentity(_ context.Context, email, passwordHash, status string) (auth.Identity, error) {
	for _, id := range f.identities {
		if id.Email == email {
			return auth.Identity{}, fmt.Errorf("%w: email taken", auth.ErrConflict)
		}
	}
	f.seq++
	identity := auth.Identity{ID: fmt.Sprintf("ident-%d", f.seq), Email: email, PasswordHash: passwordHash, Status: status}
	f.identities[identity.ID] = identity
	return identity, nil
}

func (f *fakeIdentityStore) GetIdentity(_ context.Context, id string) (auth.Identity, error) {
	identity, ok := f.identities[id]
	if !ok {
		return auth.Identity{}, fmt.Errorf("%w: identity %s", auth.ErrNotFound, id)
	}
	return identity, nil
}

func (f *fakeIdentityStore) GetIdentityByEmail(_ context.Context, email string) (auth.Identity, error) {
	for _, identity := range f.identities {
		if identity.Email == email {
			return identity, nil
		}
	}
	return auth.Identity{}, fmt.Errorf("%w: identity %s", auth.ErrNotFound, email)
}

func (f *fakeIdentityStore) DeleteIdentity(_ context.Context, id string) error {
	if _, ok := f.identities[id]; !ok {
		return fmt.Errorf("%w: identity %s", auth.ErrNotFound, id)
	}
	delete(f.identities, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeRefreshStore struct {
	revokedFor []string
}

func (f *fakeRefreshStore) CreateRefreshToken(context.Context, *auth.RefreshToken) error { return nil }

func (f *fakeRefreshStore) GetRefreshToken(_ context.Context, id string) (*auth.RefreshToken, error) {
	return nil, fmt.Errorf("%w: token %s", auth.ErrNotFound, id)
}

func (f *fakeRefreshStore) RevokeRefreshToken(context.Context, string) error { return nil }

func (f *fakeRefreshStore) RevokeRefreshTokensByIdentity(_ context.Context, identityID string) error {
	f.revokedFor = append(f.revokedFor, identityID)
	return nil
}
