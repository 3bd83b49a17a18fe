package session

import (
	"context"
	"errors"
	"fmt"

	"covena.org/internal/diag"
	"covena.org/internal/obs"
)

// Switcher changes the current association of a ready context. The
// pointer is persisted before the in-memory update; a failed persist
// fails the whole switch so durable and in-memory state never diverge.
type Switcher struct {
	pointers PointerStore
	sink     diag.Sink
}

// NewSwitcher constructs a Switcher.
func NewSwitcher(pointers PointerStore, sink diag.Sink) (*Switcher, error) {
	if pointers == nil {
		return nil, errors.New("pointer store is required")
	}
	if sink == nil {
		sink = diag.Discard
	}
	return &Switcher{pointers: pointers, sink: sink}, nil
}

// Switch moves the context to the given association. Unknown
// associations are rejected with ErrNotMember and leave both the context
// and the persisted pointer untouched. Switching to the current
// association is a no-op beyond re-persisting the pointer, so repeated
// calls are idempotent.
func (s *Switcher) Switch(ctx context.Context, sc *Context, associationID string) error {
	if sc == nil || sc.State != StateReady {
		return ErrNotReady
	}
	if !sc.IsMember(associationID) {
		obs.ObserveAssociationSwitch("rejected")
		s.sink.Emit("session", "switch rejected, no membership in "+associationID)
		return fmt.Errorf("%w: %s", ErrNotMember, associationID)
	}
	if err := s.pointers.Set(ctx, sc.Identity.ID, associationID); err != nil {
		obs.ObserveAssociationSwitch("failed")
		s.sink.Emit("session", fmt.Sprintf("switch persist failed for %s: %v", associationID, err))
		return fmt.Errorf("%w: %v", ErrPointerStore, err)
	}
	sc.CurrentAssociationID = associationID
	obs.ObserveAssociationSwitch("ok")
	s.sink.Emit("session", "switched current association to "+associationID)
	return nil
}

// SignOut tears the context down to unauthenticated and clears the
// persisted pointer. The pointer clear is best-effort; the transition
// happens unconditionally.
func (s *Switcher) SignOut(ctx context.Context, sc *Context) {
	if sc == nil {
		return
	}
	if sc.Identity != nil {
		if err := s.pointers.Clear(ctx, sc.Identity.ID); err != nil {
			s.sink.Emit("session", fmt.Sprintf("pointer clear failed on sign-out: %v", err))
		}
	}
	sc.State = StateUnauthenticated
	sc.ErrorCategory = ""
	sc.Identity = nil
	sc.Profile = nil
	sc.Memberships = nil
	sc.Roles = nil
	sc.CurrentAssociationID = ""
}
