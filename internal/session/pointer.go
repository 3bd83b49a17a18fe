package session

import (
	"context"
	"sync"
)

// PointerStore persists the current-association choice per identity so it
// survives across sessions. Get returns "" when nothing is stored. One
// writer per identity is assumed; concurrent writers are last-write-wins.
type PointerStore interface {
	Get(ctx context.Context, identityID string) (string, error)
	Set(ctx context.Context, identityID, associationID string) error
	Clear(ctx context.Context, identityID string) error
}

// MemoryPointerStore keeps pointers in a map. Used by tests and dev mode.
type MemoryPointerStore struct {
	mu       sync.Mutex
	pointers map[string]string
}

// NewMemoryPointerStore returns an empty pointer store.
func NewMemoryPointerStore() *MemoryPointerStore {
	return &MemoryPointerStore{pointers: map[string]string{}}
}

func (s *MemoryPointerStore) Get(_ context.Context, identityID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointers[identityID], nil
}

func (s *MemoryPointerStore) Set(_ context.Context, identityID, associationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointers[identityID] = associationID
	return nil
}

func (s *MemoryPointerStore) Clear(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pointers, identityID)
	return nil
}
