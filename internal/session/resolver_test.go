package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"covena.org/internal/auth"
	"covena.org/internal/diag"
	"covena.org/internal/directory"
)

type stubDirectory struct {
	profile      directory.Profile
	profileErr   error
	profileDelay time.Duration

	memberships    []directory.MembershipEntry
	membershipsErr error

	roles    []directory.Role
	rolesErr error
}

func (s *stubDirectory) GetProfileByIdentity(ctx context.Context, identityID string) (directory.Profile, error) {
	if s.profileDelay > 0 {
		t := time.NewTimer(s.profileDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return directory.Profile{}, ctx.Err()
		case <-t.C:
		}
	}
	if s.profileErr != nil {
		return directory.Profile{}, s.profileErr
	}
	return s.profile, nil
}

func (s *stubDirectory) ListMemberships(_ context.Context, _ string) ([]directory.MembershipEntry, error) {
	if s.membershipsErr != nil {
		return nil, s.membershipsErr
	}
	return s.memberships, nil
}

func (s *stubDirectory) ListAssignedRoles(_ context.Context, _ string) ([]directory.Role, error) {
	if s.rolesErr != nil {
		return nil, s.rolesErr
	}
	return s.roles, nil
}

func testIdentity() *auth.Identity {
	return &auth.Identity{ID: "id-1", Email: "resident@example.com", Status: auth.IdentityStatusActive}
}

func entry(id, associationID string, joined time.Time) directory.MembershipEntry {
	return directory.MembershipEntry{
		Membership: directory.Membership{
			ID:            id,
			IdentityID:    "id-1",
			AssociationID: associationID,
			Active:        true,
			JoinedAt:      joined,
		},
		Association: directory.Association{ID: associationID, Name: "Association " + associationID},
	}
}

func scopedRole(associationID string, permissions ...string) directory.Role {
	return directory.Role{ID: "role-" + associationID, Name: "board", AssociationID: associationID, Permissions: permissions}
}

func systemRole(permissions ...string) directory.Role {
	return directory.Role{ID: "role-system", Name: "platform_admin", System: true, Permissions: permissions}
}

func newResolver(t *testing.T, dir Directory, pointers PointerStore, opts ...ResolverOption) *Resolver {
	t.Helper()
	r, err := NewResolver(dir, pointers, opts...)
	require.NoError(t, err)
	return r
}

func TestResolveNilIdentityIsUnauthenticated(t *testing.T) {
	r := newResolver(t, &stubDirectory{}, NewMemoryPointerStore())

	sc := r.Resolve(context.Background(), nil)

	assert.Equal(t, StateUnauthenticated, sc.State)
	assert.False(t, sc.HasPermission(directory.PermManageUsers))
}

func TestResolveNoProfile(t *testing.T) {
	dir := &stubDirectory{profileErr: directory.ErrNotFound}
	r := newResolver(t, dir, NewMemoryPointerStore())

	sc := r.Resolve(context.Background(), testIdentity())

	assert.Equal(t, StateProfileMissing, sc.State)
	assert.Empty(t, sc.ErrorCategory)
}

func TestResolveNoMemberships(t *testing.T) {
	dir := &stubDirectory{profile: directory.Profile{ID: "p-1", IdentityID: "id-1"}}
	r := newResolver(t, dir, NewMemoryPointerStore())

	sc := r.Resolve(context.Background(), testIdentity())

	assert.Equal(t, StateTenantMissing, sc.State)
}

func TestResolveDefaultsToFirstMembership(t *testing.T) {
	joined := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	dir := &stubDirectory{
		profile: directory.Profile{ID: "p-1", IdentityID: "id-1"},
		memberships: []directory.MembershipEntry{
			entry("m-1", "assoc-a", joined),
			entry("m-2", "assoc-b", joined.Add(24*time.Hour)),
		},
	}
	r := newResolver(t, dir, NewMemoryPointerStore())

	sc := r.Resolve(context.Background(), testIdentity())

	require.Equal(t, StateReady, sc.State)
	assert.Equal(t, "assoc-a", sc.CurrentAssociationID)
}

func TestResolvePersistedPointerRoundTrip(t *testing.T) {
	joined := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	dir := &stubDirectory{
		profile: directory.Profile{ID: "p-1", IdentityID: "id-1"},
		memberships: []directory.MembershipEntry{
			entry("m-1", "assoc-a", joined),
			entry("m-2", "assoc-b", joined.Add(24*time.Hour)),
		},
	}
	pointers := NewMemoryPointerStore()
	require.NoError(t, pointers.Set(context.Background(), "id-1", "assoc-b"))
	r := newResolver(t, dir, pointers)

	sc := r.Resolve(context.Background(), testIdentity())

	require.Equal(t, StateReady, sc.State)
	assert.Equal(t, "assoc-b", sc.CurrentAssociationID)
}

func TestResolveStalePointerFallsBack(t *testing.T) {
	joined := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	dir := &stubDirectory{
		profile:     directory.Profile{ID: "p-1", IdentityID: "id-1"},
		memberships: []directory.MembershipEntry{entry("m-1", "assoc-a", joined)},
	}
	pointers := NewMemoryPointerStore()
	require.NoError(t, pointers.Set(context.Background(), "id-1", "assoc-gone"))
	r := newResolver(t, dir, pointers)

	sc := r.Resolve(context.Background(), testIdentity())

	require.Equal(t, StateReady, sc.State)
	assert.Equal(t, "assoc-a", sc.CurrentAssociationID)
}

func TestResolveDeduplicatesMembershipsFirstWins(t *testing.T) {
	joined := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	dir := &stubDirectory{
		profile: directory.Profile{ID: "p-1", IdentityID: "id-1"},
		memberships: []directory.MembershipEntry{
			entry("m-1", "assoc-a", joined),
			entry("m-2", "assoc-a", joined.Add(time.Hour)),
			entry("m-3", "assoc-b", joined.Add(2*time.Hour)),
		},
	}
	r := newResolver(t, dir, NewMemoryPointerStore())

	sc := r.Resolve(context.Background(), testIdentity())

	require.Equal(t, StateReady, sc.State)
	require.Len(t, sc.Memberships, 2)
	assert.Equal(t, "m-1", sc.Memberships[0].Membership.ID)
	assert.Equal(t, "assoc-b", sc.Memberships[1].Membership.AssociationID)
}

func TestResolveRoleLoadFailureStillReady(t *testing.T) {
	joined := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	dir := &stubDirectory{
		profile:     directory.Profile{ID: "p-1", IdentityID: "id-1"},
		memberships: []directory.MembershipEntry{entry("m-1", "assoc-a", joined)},
		rolesErr:    errors.New("boom"),
	}
	ring := diag.NewRing(10)
	r := newResolver(t, dir, NewMemoryPointerStore(), WithSink(ring))

	sc := r.Resolve(context.Background(), testIdentity())

	require.Equal(t, StateReady, sc.State)
	assert.Empty(t, sc.Permissions())
	assert.False(t, sc.HasPermission(directory.PermViewViolations))

	var degraded bool
	for _, ev := range ring.Events() {
		if ev.Source == "session" {
			degraded = true
		}
	}
	assert.True(t, degraded, "expected a diagnostic event for role degradation")
}

func TestResolveMembershipFailureIsError(t *testing.T) {
	dir := &stubDirectory{
		profile:        directory.Profile{ID: "p-1", IdentityID: "id-1"},
		membershipsErr: errors.New("connection refused"),
	}
	r := newResolver(t, dir, NewMemoryPointerStore())

	sc := r.Resolve(context.Background(), testIdentity())

	assert.Equal(t, StateError, sc.State)
	assert.Equal(t, ErrorGeneric, sc.ErrorCategory)
}

func TestResolveProfileTimeoutYieldsTimeoutError(t *testing.T) {
	dir := &stubDirectory{profileDelay: 200 * time.Millisecond}
	r := newResolver(t, dir, NewMemoryPointerStore(),
		WithStepTimeout(20*time.Millisecond),
		WithCeiling(time.Second),
	)

	start := time.Now()
	sc := r.Resolve(context.Background(), testIdentity())

	require.Equal(t, StateError, sc.State)
	assert.Equal(t, ErrorTimeout, sc.ErrorCategory)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "resolution must not wait out the full delay")
}

func TestResolveZeroAssignmentsAllPermissionsFalse(t *testing.T) {
	joined := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	dir := &stubDirectory{
		profile:     directory.Profile{ID: "p-1", IdentityID: "id-1"},
		memberships: []directory.MembershipEntry{entry("m-1", "assoc-a", joined)},
	}
	r := newResolver(t, dir, NewMemoryPointerStore())

	sc := r.Resolve(context.Background(), testIdentity())

	require.Equal(t, StateReady, sc.State)
	for _, p := range directory.AllPermissions {
		assert.False(t, sc.HasPermission(p), p)
	}
}
