package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"covena.org/internal/auth"
	"covena.org/internal/diag"
	"covena.org/internal/directory"
	"covena.org/internal/obs"
)

// Directory is the slice of the directory store the resolver reads.
type Directory interface {
	GetProfileByIdentity(ctx context.Context, identityID string) (directory.Profile, error)
	ListMemberships(ctx context.Context, identityID string) ([]directory.MembershipEntry, error)
	ListAssignedRoles(ctx context.Context, identityID string) ([]directory.Role, error)
}

const (
	defaultStepTimeout = 5 * time.Second
	defaultCeiling     = 12 * time.Second
)

// Resolver builds a session Context for a verified identity. Each fetch
// runs under a per-step timeout nested inside an absolute ceiling, so a
// stuck dependency always yields a terminal state instead of an
// open-ended resolving phase.
type Resolver struct {
	dir      Directory
	pointers PointerStore
	sink     diag.Sink

	stepTimeout time.Duration
	ceiling     time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStepTimeout overrides the per-fetch timeout.
func WithStepTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.stepTimeout = d
		}
	}
}

// WithCeiling overrides the absolute resolution ceiling.
func WithCeiling(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.ceiling = d
		}
	}
}

// WithSink routes diagnostic events to the given sink.
func WithSink(sink diag.Sink) ResolverOption {
	return func(r *Resolver) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// NewResolver constructs a Resolver.
func NewResolver(dir Directory, pointers PointerStore, opts ...ResolverOption) (*Resolver, error) {
	if dir == nil {
		return nil, errors.New("directory store is required")
	}
	if pointers == nil {
		return nil, errors.New("pointer store is required")
	}
	r := &Resolver{
		dir:         dir,
		pointers:    pointers,
		sink:        diag.Discard,
		stepTimeout: defaultStepTimeout,
		ceiling:     defaultCeiling,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve assembles a fresh Context for the identity. It always returns
// a context in a terminal state; transient failures are classified into
// an error category rather than propagated raw. Role loading failures
// degrade the permission set but never block reaching ready.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity) *Context {
	if identity == nil {
		return r.finish(&Context{State: StateUnauthenticated})
	}

	ctx, cancel := context.WithTimeout(ctx, r.ceiling)
	defer cancel()

	sc := &Context{State: StateResolving, Identity: identity}

	profile, err := r.fetchProfile(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			r.sink.Emit("session", "no profile for identity "+identity.ID)
			sc.State = StateProfileMissing
			return r.finish(sc)
		}
		sc.State = StateError
		sc.ErrorCategory = classify(err)
		r.sink.Emit("session", fmt.Sprintf("profile load failed (%s): %v", sc.ErrorCategory, err))
		return r.finish(sc)
	}
	sc.Profile = &profile

	// Memberships and roles depend only on the identity id, so they
	// load in parallel. Membership failure is fatal for this pass; role
	// failure only empties the permission set.
	var (
		memberships []directory.MembershipEntry
		roles       []directory.Role
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		memberships, err = r.fetchMemberships(gctx, identity.ID)
		return err
	})
	g.Go(func() error {
		loaded, err := r.fetchRoles(gctx, identity.ID)
		if err != nil {
			r.sink.Emit("session", fmt.Sprintf("role load failed, continuing without permissions: %v", err))
			return nil
		}
		roles = loaded
		return nil
	})
	if err := g.Wait(); err != nil {
		sc.State = StateError
		sc.ErrorCategory = classify(err)
		r.sink.Emit("session", fmt.Sprintf("membership load failed (%s): %v", sc.ErrorCategory, err))
		return r.finish(sc)
	}

	memberships = dedupeMemberships(memberships)
	if len(memberships) == 0 {
		r.sink.Emit("session", "no active memberships for identity "+identity.ID)
		sc.State = StateTenantMissing
		return r.finish(sc)
	}
	sc.Memberships = memberships
	sc.Roles = roles
	sc.CurrentAssociationID = r.currentAssociation(ctx, identity.ID, memberships)
	sc.State = StateReady
	return r.finish(sc)
}

func (r *Resolver) finish(sc *Context) *Context {
	obs.ObserveSessionResolution(string(sc.State))
	return sc
}

func (r *Resolver) fetchProfile(ctx context.Context, identityID string) (directory.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()
	return r.dir.GetProfileByIdentity(ctx, identityID)
}

func (r *Resolver) fetchMemberships(ctx context.Context, identityID string) ([]directory.MembershipEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()
	return r.dir.ListMemberships(ctx, identityID)
}

func (r *Resolver) fetchRoles(ctx context.Context, identityID string) ([]directory.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()
	return r.dir.ListAssignedRoles(ctx, identityID)
}

// currentAssociation applies the firstmatch rule: the persisted pointer
// wins when it still names a membership, otherwise the first membership
// in load order. Pointer store failures fall back to the default rather
// than failing resolution.
func (r *Resolver) currentAssociation(ctx context.Context, identityID string, memberships []directory.MembershipEntry) string {
	ctx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	pointer, err := r.pointers.Get(ctx, identityID)
	if err != nil {
		r.sink.Emit("session", fmt.Sprintf("pointer load failed, using first membership: %v", err))
		return memberships[0].Membership.AssociationID
	}
	if pointer != "" {
		for _, entry := range memberships {
			if entry.Membership.AssociationID == pointer {
				return pointer
			}
		}
		r.sink.Emit("session", "persisted association "+pointer+" no longer a membership, falling back")
	}
	return memberships[0].Membership.AssociationID
}

// dedupeMemberships drops later duplicates per association, first wins.
// Duplicate active rows are a data-integrity fault the schema also
// guards against; load-time de-dup keeps the context consistent anyway.
func dedupeMemberships(entries []directory.MembershipEntry) []directory.MembershipEntry {
	if len(entries) < 2 {
		return entries
	}
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, entry := range entries {
		if _, dup := seen[entry.Membership.AssociationID]; dup {
			continue
		}
		seen[entry.Membership.AssociationID] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// classify maps a transient failure into a user-facing category.
func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTimeout
		}
		return ErrorNetwork
	}
	return ErrorGeneric
}
