package ratelimit

import (
	"context"
	"sync"
)

// MemoryStore keeps bucket state in process memory. Suitable for tests and
// single-node deployments.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]BucketState
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]BucketState)}
}

// Load returns the stored state for identifier.
func (s *MemoryStore) Load(_ context.Context, identifier string) (BucketState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.buckets[identifier]
	return state, ok, nil
}

// Save stores the state for identifier.
func (s *MemoryStore) Save(_ context.Context, identifier string, state BucketState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[identifier] = state
	return nil
}

var _ BucketStore = (*MemoryStore)(nil)
