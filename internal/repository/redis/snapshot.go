package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
)

const keyPrefix = "storefront:"

// SnapshotStore implements repository.SnapshotStore on Redis. Keys are
// namespaced by prefix so several shoppers can share one Redis.
type SnapshotStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSnapshotStore creates a Redis-backed store. namespace is appended to
// the storefront prefix; ttl of zero keeps snapshots forever.
func NewSnapshotStore(client *redis.Client, namespace string, ttl time.Duration) *SnapshotStore {
	prefix := keyPrefix
	if namespace != "" {
		prefix += namespace + ":"
	}
	return &SnapshotStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get retrieves the snapshot under key.
func (s *SnapshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("snapshot", key)
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	return data, nil
}

// Put stores data under key with the configured TTL.
func (s *SnapshotStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot under key.
func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del snapshot: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
