package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process CacheStore. It is meant for single-node
// deployments and for tests, production setups use the redis store.
type MemoryStore struct {
	mutex   sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates a new in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the value stored under key, or ErrNotFound. Expired entries
// are pruned lazily.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mutex.RLock()
	entry, ok := m.entries[key]
	m.mutex.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if m.now().After(entry.expiresAt) {
		m.mutex.Lock()
		// re-check under the write lock, a concurrent Set may have
		// written a fresh record since the read
		if current, ok := m.entries[key]; ok && m.now().After(current.expiresAt) {
			delete(m.entries, key)
		}
		m.mutex.Unlock()
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// Set stores value under key with the given time to live.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mutex.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	m.mutex.Unlock()
	return nil
}
