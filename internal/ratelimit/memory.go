package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	windowStart time.Time
	hits        int64
	expiresAt   time.Time
}

// MemoryStore keeps counters in process memory. Each key only remembers its
// current window; stale keys are swept on write.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

func (m *MemoryStore) Increment(_ context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)

	e, ok := m.entries[key]
	if !ok || !e.windowStart.Equal(windowStart) {
		e = &memoryEntry{windowStart: windowStart, expiresAt: windowStart.Add(window)}
		m.entries[key] = e
	}
	e.hits++
	return e.hits, nil
}

func (m *MemoryStore) Count(_ context.Context, key string, windowStart time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !e.windowStart.Equal(windowStart) {
		return 0, nil
	}
	return e.hits, nil
}

// Len returns the number of tracked keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// sweepLocked drops expired entries at most once a minute.
// Caller must hold mu.
func (m *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(m.lastSweep) < time.Minute {
		return
	}
	m.lastSweep = now
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}
