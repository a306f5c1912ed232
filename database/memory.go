package database

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires *time.Time
}

// MemoryStore keeps state in process memory only.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{data: make(map[string]memoryEntry), now: now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	if entry.expires != nil && !m.now().Before(*entry.expires) {
		delete(m.data, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memoryEntry{value: value, expires: expiry(m.now(), ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
