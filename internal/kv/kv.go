// Package kv provides the small string key-value store that stands in for
// browser-local storage.
//
// Everything that must survive a login round trip for one browser (the
// migration source id, the post-login target, the device id, the current
// access token) goes through a Store. Production requests use a CookieStore;
// tests and long-lived connections use a MemoryStore.
package kv

import (
	"context"
	"sync"
)

// Store is a synchronous string store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore, optionally seeded.
func NewMemoryStore(seed map[string]string) *MemoryStore {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &MemoryStore{values: values}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStore) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *MemoryStore) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

type contextKey string

const storeKey contextKey = "kvStore"

// WithStore returns a copy of ctx carrying s.
func WithStore(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, storeKey, s)
}

// FromContext returns the Store set by WithStore.
func FromContext(ctx context.Context) (Store, bool) {
	s, ok := ctx.Value(storeKey).(Store)
	return s, ok && s != nil
}
