// Package memory stores snapshot blobs in-memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/tkearney/tenderfeed/internal/tender"
)

// SnapshotStore keeps blobs in a mutex-guarded map. Puts replace the whole
// value, so concurrent readers never observe a partial write.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewSnapshotStore creates an empty in-memory store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string][]byte)}
}

// Get returns the stored bytes for key, or tender.ErrNotFound.
func (s *SnapshotStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, tender.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data under key, replacing any previous value.
func (s *SnapshotStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}
