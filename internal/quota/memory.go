// File: internal/quota/memory.go
package quota

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

// MemoryCounterStore is an in-process CounterStore for single-node
// deployments and tests. Counters expire lazily on access.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

// NewMemoryCounterStore creates an in-memory counter store
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

// Get returns the current counter value, 0 when absent or expired
func (s *MemoryCounterStore) Get(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || s.now().After(counter.expiresAt) {
		return 0, nil
	}
	return counter.value, nil
}

// IncrWithTTL increments a counter, creating it with the TTL when absent
func (s *MemoryCounterStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || s.now().After(counter.expiresAt) {
		counter = &memoryCounter{expiresAt: s.now().Add(ttl)}
		s.counters[key] = counter
	}
	counter.value++
	return counter.value, nil
}

// Close clears all counters
func (s *MemoryCounterStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]*memoryCounter)
	return nil
}
