package cache

import (
	"bytes"
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryBackend is an in-process Backend. It is useful as a second tier
// that outlives Store index evictions, and as a test double for durable
// stores.
type MemoryBackend struct {
	items *gocache.Cache
}

// NewMemoryBackend creates a backend that purges expired items every
// cleanup interval. A non-positive interval disables the janitor; expired
// items are still never returned.
func NewMemoryBackend(cleanup time.Duration) *MemoryBackend {
	return &MemoryBackend{items: gocache.New(gocache.NoExpiration, cleanup)}
}

// Get returns a copy of the stored value.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v.([]byte)), true, nil
}

// Set stores a copy of value.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.items.Set(key, bytes.Clone(value), ttl)
	return nil
}

// Delete removes key.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Scan calls fn for each unexpired item.
func (m *MemoryBackend) Scan(ctx context.Context, fn func(key string, value []byte) error) error {
	for k, item := range m.items.Items() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, item.Object.([]byte)); err != nil {
			return err
		}
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryBackend) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored items, including expired ones not yet
// purged.
func (m *MemoryBackend) Len() int {
	return m.items.ItemCount()
}

// Flush removes every item.
func (m *MemoryBackend) Flush() {
	m.items.Flush()
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Pinger  = (*MemoryBackend)(nil)
	_ Scanner = (*MemoryBackend)(nil)
)
