package storage

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps values in process memory. Entries idle longer than
// the configured retention are evicted by go-cache's janitor.
type MemoryStore struct {
	items *cache.Cache
}

// NewMemoryStore creates a memory store. A zero retention keeps entries forever.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = cache.NoExpiration
	}
	return &MemoryStore{
		items: cache.New(retention, 10*time.Minute),
	}
}

func memoryKey(scope, key string) string {
	return scope + "\x00" + key
}

// Get returns a copy of the stored bytes
func (m *MemoryStore) Get(_ context.Context, scope, key string) ([]byte, error) {
	v, ok := m.items.Get(memoryKey(scope, key))
	if !ok {
		return nil, ErrNotFound
	}
	raw := v.([]byte)
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Set stores a copy of value
func (m *MemoryStore) Set(_ context.Context, scope, key string, value []byte) error {
	raw := make([]byte, len(value))
	copy(raw, value)
	m.items.Set(memoryKey(scope, key), raw, cache.DefaultExpiration)
	return nil
}

// Delete removes keys from a scope; missing keys are ignored
func (m *MemoryStore) Delete(_ context.Context, scope string, keys ...string) error {
	for _, key := range keys {
		m.items.Delete(memoryKey(scope, key))
	}
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
