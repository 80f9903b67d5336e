package memory

import (
	"context"
	"sync"

	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
)

// SnapshotStore keeps snapshots in process memory. It is lost on restart.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewSnapshotStore creates an empty in-memory store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string][]byte)}
}

// Get returns a copy of the snapshot under key.
func (s *SnapshotStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, apperrors.NotFound("snapshot", key)
	}
	return append([]byte(nil), v...), nil
}

// Put stores a copy of data under key.
func (s *SnapshotStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes key.
func (s *SnapshotStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Ping always succeeds.
func (s *SnapshotStore) Ping(context.Context) error {
	return nil
}
