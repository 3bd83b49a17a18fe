package violation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxTitleLength = 200

// Service validates violation operations before they hit the store.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("violation store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Report files a new violation in the given association.
func (s *Service) Report(ctx context.Context, associationID, reporterProfileID, category, title, description string) (Violation, error) {
	associationID = strings.TrimSpace(associationID)
	reporterProfileID = strings.TrimSpace(reporterProfileID)
	category = strings.TrimSpace(strings.ToLower(category))
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	if associationID == "" {
		return Violation{}, fmt.Errorf("%w: association_id is required", ErrInvalidInput)
	}
	if reporterProfileID == "" {
		return Violation{}, fmt.Errorf("%w: reporter profile is required", ErrInvalidInput)
	}
	if !ValidCategory(category) {
		return Violation{}, fmt.Errorf("%w: unknown category %s", ErrInvalidInput, category)
	}
	if title == "" {
		return Violation{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(title) > maxTitleLength {
		return Violation{}, fmt.Errorf("%w: title too long", ErrInvalidInput)
	}

	return s.store.CreateViolation(ctx, Violation{
		AssociationID:     associationID,
		ReporterProfileID: reporterProfileID,
		Category:          category,
		Title:             title,
		Description:       description,
		Status:            StatusOpen,
	})
}

// Get returns one violation within the association scope.
func (s *Service) Get(ctx context.Context, associationID, id string) (Violation, error) {
	associationID = strings.TrimSpace(associationID)
	id = strings.TrimSpace(id)
	if associationID == "" || id == "" {
		return Violation{}, fmt.Errorf("%w: association_id and violation id are required", ErrInvalidInput)
	}
	return s.store.GetViolation(ctx, associationID, id)
}

// List returns violations for the association, newest first.
func (s *Service) List(ctx context.Context, associationID string, filter ListFilter) ([]Violation, error) {
	associationID = strings.TrimSpace(associationID)
	if associationID == "" {
		return nil, fmt.Errorf("%w: association_id is required", ErrInvalidInput)
	}
	if filter.Status != "" {
		switch filter.Status {
		case StatusOpen, StatusInProgress, StatusResolved, StatusDismissed:
		default:
			return nil, fmt.Errorf("%w: unknown status %s", ErrInvalidInput, filter.Status)
		}
	}
	if filter.Category != "" && !ValidCategory(filter.Category) {
		return nil, fmt.Errorf("%w: unknown category %s", ErrInvalidInput, filter.Category)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListViolations(ctx, associationID, filter)
}

// Update edits category, title, or description.
func (s *Service) Update(ctx context.Context, associationID, id string, upd Update) (Violation, error) {
	associationID = strings.TrimSpace(associationID)
	id = strings.TrimSpace(id)
	if associationID == "" || id == "" {
		return Violation{}, fmt.Errorf("%w: association_id and violation id are required", ErrInvalidInput)
	}
	if upd.Category != nil {
		category := strings.TrimSpace(strings.ToLower(*upd.Category))
		if !ValidCategory(category) {
			return Violation{}, fmt.Errorf("%w: unknown category %s", ErrInvalidInput, category)
		}
		upd.Category = &category
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" || len(title) > maxTitleLength {
			return Violation{}, fmt.Errorf("%w: title is required and must fit %d characters", ErrInvalidInput, maxTitleLength)
		}
		upd.Title = &title
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return s.store.UpdateViolation(ctx, associationID, id, upd)
}

// Start moves an open violation to in_progress.
func (s *Service) Start(ctx context.Context, associationID, id string) (Violation, error) {
	return s.transition(ctx, associationID, id, StatusInProgress, "")
}

// Resolve closes the violation as fixed, stamping who resolved it.
func (s *Service) Resolve(ctx context.Context, associationID, id, resolvedByProfileID string) (Violation, error) {
	resolvedByProfileID = strings.TrimSpace(resolvedByProfileID)
	if resolvedByProfileID == "" {
		return Violation{}, fmt.Errorf("%w: resolver profile is required", ErrInvalidInput)
	}
	return s.transition(ctx, associationID, id, StatusResolved, resolvedByProfileID)
}

// Dismiss closes the violation as rejected, stamping who dismissed it.
func (s *Service) Dismiss(ctx context.Context, associationID, id, dismissedByProfileID string) (Violation, error) {
	dismissedByProfileID = strings.TrimSpace(dismissedByProfileID)
	if dismissedByProfileID == "" {
		return Violation{}, fmt.Errorf("%w: resolver profile is required", ErrInvalidInput)
	}
	return s.transition(ctx, associationID, id, StatusDismissed, dismissedByProfileID)
}

// Reopen returns a closed violation to open and clears the resolution stamp.
func (s *Service) Reopen(ctx context.Context, associationID, id string) (Violation, error) {
	return s.transition(ctx, associationID, id, StatusOpen, "")
}

func (s *Service) transition(ctx context.Context, associationID, id, to, byProfileID string) (Violation, error) {
	associationID = strings.TrimSpace(associationID)
	id = strings.TrimSpace(id)
	if associationID == "" || id == "" {
		return Violation{}, fmt.Errorf("%w: association_id and violation id are required", ErrInvalidInput)
	}
	current, err := s.store.GetViolation(ctx, associationID, id)
	if err != nil {
		return Violation{}, err
	}
	if !validTransition(current.Status, to) {
		return Violation{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}
	var resolvedAt *time.Time
	if to == StatusResolved || to == StatusDismissed {
		now := s.now().UTC()
		resolvedAt = &now
	}
	return s.store.SetViolationStatus(ctx, associationID, id, to, byProfileID, resolvedAt)
}
