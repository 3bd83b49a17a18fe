// Package redis persists the per-identity current-association pointer in
// Redis so it survives restarts and is shared across API instances.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"covena.org/internal/session"
)

const pointerKeyPrefix = "covena:current_association:"

// PointerStore implements session.PointerStore on a Redis client.
type PointerStore struct {
	client *redis.Client
}

var _ session.PointerStore = (*PointerStore)(nil)

// NewPointerStore connects to addr and verifies the connection.
func NewPointerStore(ctx context.Context, addr string) (*PointerStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &PointerStore{client: client}, nil
}

// Get returns the stored association id, or "" when nothing is stored.
func (s *PointerStore) Get(ctx context.Context, identityID string) (string, error) {
	val, err := s.client.Get(ctx, pointerKeyPrefix+identityID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (s *PointerStore) Set(ctx context.Context, identityID, associationID string) error {
	if err := s.client.Set(ctx, pointerKeyPrefix+identityID, associationID, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *PointerStore) Clear(ctx context.Context, identityID string) error {
	if err := s.client.Del(ctx, pointerKeyPrefix+identityID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *PointerStore) Close() error {
	return s.client.Close()
}
