package local

import (
	"context"

	goCache "github.com/patrickmn/go-cache"

	"possync/internal/core/kv"
)

// MemoryStore is a non-durable kv.Store for tests and ephemeral terminals.
// Entries never expire.
type MemoryStore struct {
	cache *goCache.Cache
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: goCache.New(goCache.NoExpiration, 0)}
}

// Get implements kv.Store.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, kv.ErrNotFound
	}
	raw := v.([]byte)
	return append([]byte(nil), raw...), nil
}

// Put implements kv.Store.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	s.cache.Set(key, append([]byte(nil), value...), goCache.NoExpiration)
	return nil
}

var _ kv.Store = (*MemoryStore)(nil)
