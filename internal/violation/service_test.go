package violation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	seq   int
	items map[string]Violation
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[string]Violation{}}
}

func (f *fakeStore) CreateViolation(_ context.Context, v Violation) (Violation, error) {
	f.seq++
	v.ID = fmt.Sprintf("vio-%d", f.seq)
	v.CreatedAt = time.Now().UTC()
	v.UpdatedAt = v.CreatedAt
	f.items[v.ID] = v
	return v, nil
}

func (f *fakeStore) GetViolation(_ context.Context, associationID, id string) (Violation, error) {
	v, ok := f.items[id]
	if !ok || v.AssociationID != associationID {
		return Violation{}, fmt.Errorf("%w: violation %s", ErrNotFound, id)
	}
	return v, nil
}

func (f *fakeStore) ListViolations(_ context.Context, associationID string, filter ListFilter) ([]Violation, error) {
	var out []Violation
	for _, v := range f.items {
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
	return out, nil
}

func (f *fakeStore) UpdateViolation(ctx context.Context, associationID, id string, upd Update) (Violation, error) {
	v, err := f.GetViolation(ctx, associationID, id)
	if err != nil {
		return Violation{}, err
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
	f.items[id] = v
	return v, nil
}

func (f *fakeStore) SetViolationStatus(ctx context.Context, associationID, id, status, resolvedBy string, resolvedAt *time.Time) (Violation, error) {
	v, err := f.GetViolation(ctx, associationID, id)
	if err != nil {
		return Violation{}, err
	}
	v.Status = status
	v.ResolvedBy = resolvedBy
	v.ResolvedAt = resolvedAt
	v.UpdatedAt = time.Now().UTC()
	f.items[id] = v
	return v, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc, err := NewService(store)
	require.NoError(t, err)
	return svc, store
}

func report(t *testing.T, svc *Service) Violation {
	t.Helper()
	v, err := svc.Report(context.Background(), "assoc-a", "prof-1", "parking", "Car on lawn", "")
	require.NoError(t, err)
	return v
}

func TestReportNormalizesAndDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	v, err := svc.Report(context.Background(), " assoc-a ", "prof-1", " Parking ", "  Car on lawn  ", " details ")
	require.NoError(t, err)
	assert.Equal(t, "assoc-a", v.AssociationID)
	assert.Equal(t, "parking", v.Category)
	assert.Equal(t, "Car on lawn", v.Title)
	assert.Equal(t, "details", v.Description)
	assert.Equal(t, StatusOpen, v.Status)
}

func TestReportRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Report(ctx, "", "prof-1", "parking", "title", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Report(ctx, "assoc-a", "prof-1", "bribery", "title", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Report(ctx, "assoc-a", "prof-1", "parking", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	long := make([]byte, maxTitleLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = svc.Report(ctx, "assoc-a", "prof-1", "parking", string(long), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStatusMachine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	v := report(t, svc)

	started, err := svc.Start(ctx, "assoc-a", v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	// in_progress cannot go back to in_progress
	_, err = svc.Start(ctx, "assoc-a", v.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	resolved, err := svc.Resolve(ctx, "assoc-a", v.ID, "prof-2")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	assert.Equal(t, "prof-2", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)

	// closed violations only reopen
	_, err = svc.Dismiss(ctx, "assoc-a", v.ID, "prof-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	reopened, err := svc.Reopen(ctx, "assoc-a", v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, reopened.Status)
	assert.Empty(t, reopened.ResolvedBy)
	assert.Nil(t, reopened.ResolvedAt)
}

func TestDismissFromOpen(t *testing.T) {
	svc, _ := newTestService(t)
	v := report(t, svc)

	dismissed, err := svc.Dismiss(context.Background(), "assoc-a", v.ID, "prof-2")
	require.NoError(t, err)
	assert.Equal(t, StatusDismissed, dismissed.Status)
	assert.Equal(t, "prof-2", dismissed.ResolvedBy)
	require.NotNil(t, dismissed.ResolvedAt)
}

func TestResolveRequiresProfile(t *testing.T) {
	svc, _ := newTestService(t)
	v := report(t, svc)

	_, err := svc.Resolve(context.Background(), "assoc-a", v.ID, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssociationScopeIsolatesViolations(t *testing.T) {
	svc, _ := newTestService(t)
	v := report(t, svc)

	_, err := svc.Get(context.Background(), "assoc-b", v.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Resolve(context.Background(), "assoc-b", v.ID, "prof-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListValidatesFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	report(t, svc)

	_, err := svc.List(ctx, "assoc-a", ListFilter{Status: "escalated"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.List(ctx, "assoc-a", ListFilter{Category: "bribery"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	items, err := svc.List(ctx, "assoc-a", ListFilter{Status: StatusOpen})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestUpdateValidatesFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	v := report(t, svc)

	empty := "  "
	_, err := svc.Update(ctx, "assoc-a", v.ID, Update{Title: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)

	category := "Noise"
	title := " Loud parties "
	updated, err := svc.Update(ctx, "assoc-a", v.ID, Update{Category: &category, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "noise", updated.Category)
	assert.Equal(t, "Loud parties", updated.Title)
}
