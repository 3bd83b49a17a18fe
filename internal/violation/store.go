package violation

import (
	"context"
	"time"
)

// Store persists violations. Every operation is scoped by association id;
// a violation belonging to a different association behaves as not found.
type Store interface {
	CreateViolation(ctx context.Context, v Violation) (Violation, error)
	GetViolation(ctx context.Context, associationID, id string) (Violation, error)
	ListViolations(ctx context.Context, associationID string, filter ListFilter) ([]Violation, error)
	UpdateViolation(ctx context.Context, associationID, id string, upd Update) (Violation, error)
	SetViolationStatus(ctx context.Context, associationID, id, status, resolvedBy string, resolvedAt *time.Time) (Violation, error)
}
