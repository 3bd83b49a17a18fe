package session

import "errors"

var (
	// ErrNotMember rejects a switch to an association outside the
	// identity's membership list.
	ErrNotMember = errors.New("session: not a member of association")

	// ErrNotReady rejects operations on a context that has not reached
	// the ready state.
	ErrNotReady = errors.New("session: context not ready")

	// ErrPointerStore wraps failures persisting the current-association
	// pointer. A failed persist fails the whole switch.
	ErrPointerStore = errors.New("session: pointer store failure")
)
