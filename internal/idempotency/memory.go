package idempotency

import (
	"context"
	"sync"
)

// Default bounds of the in-memory cache.
const (
	DefaultCapacity = 1000
	DefaultEvict    = 100
)

// Memory is a bounded set of keys. Once the size exceeds capacity, the evict
// oldest keys (by first insertion) are dropped. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	capacity int
	evict    int
	keys     map[string]struct{}
	order    []string
}

// NewMemory returns an empty cache. Non-positive arguments fall back to the
// defaults; evict is clamped to capacity.
func NewMemory(capacity, evict int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if evict <= 0 {
		evict = DefaultEvict
	}
	if evict > capacity {
		evict = capacity
	}
	return &Memory{
		capacity: capacity,
		evict:    evict,
		keys:     make(map[string]struct{}, capacity+1),
		order:    make([]string, 0, capacity+1),
	}
}

// Seen implements Cache.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

// Mark implements Cache. Re-marking a present key does not refresh its age.
func (m *Memory) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return nil
	}
	m.keys[key] = struct{}{}
	m.order = append(m.order, key)

	if len(m.order) > m.capacity {
		for _, k := range m.order[:m.evict] {
			delete(m.keys, k)
		}
		rest := make([]string, len(m.order)-m.evict, m.capacity+1)
		copy(rest, m.order[m.evict:])
		m.order = rest
	}
	return nil
}

// Len returns the number of keys currently held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
