package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

// Memory is an in-memory W-TinyLFU seen-set backed by otter. Entries expire
// ttl after they were first recorded.
type Memory struct {
	// mu makes check-and-record atomic per call.
	mu    sync.Mutex
	cache *otter.Cache[string, time.Time]
	ttl   time.Duration
}

// NewMemory creates a seen-set holding at most maxSize IDs for ttl each.
func NewMemory(maxSize int, ttl time.Duration) (*Memory, error) {
	c, err := otter.New(&otter.Options[string, time.Time]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, time.Time](ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Memory{cache: c, ttl: ttl}, nil
}

// FirstSeen records id and reports whether it was new.
func (m *Memory) FirstSeen(_ context.Context, id string) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if seenAt, ok := m.cache.GetIfPresent(id); ok && now.Sub(seenAt) < m.ttl {
		return false
	}
	m.cache.Set(id, now)
	return true
}

// Forget removes id from the set.
func (m *Memory) Forget(_ context.Context, id string) {
	m.cache.Invalidate(id)
}

// Purge removes all IDs.
func (m *Memory) Purge(_ context.Context) {
	m.cache.InvalidateAll()
}
