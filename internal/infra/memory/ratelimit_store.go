// Package memory provides in-process implementations of the
// persistence ports, used in tests and single-node runs.
package memory

import (
	"context"
	"sync"

	"batch-disburser/internal/domain"
)

type rateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewRateLimitStore creates an in-memory rate-limit counter store.
// Safe for concurrent use; the single mutex serializes every
// gate-and-increment, mirroring the etcd store's per-key atomicity.
func NewRateLimitStore() domain.RateLimitStore {
	return &rateLimitStore{counts: make(map[string]int64)}
}

func (s *rateLimitStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, found := s.counts[key]
	return count, found, nil
}

func (s *rateLimitStore) TryAcquire(_ context.Context, key string, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.counts[key]
	if count >= limit {
		return count, false, nil
	}
	s.counts[key] = count + 1
	return count + 1, true, nil
}
