package sequence

import (
	"context"
	"errors"
	"fmt"

	"possync/internal/core/kv"
)

const cacheKeyPrefix = "sequence_state/"

// Cache is the durable local mirror of State, one entry per company.
type Cache struct {
	store kv.Store
}

// NewCache creates a cache over store.
func NewCache(store kv.Store) *Cache {
	return &Cache{store: store}
}

func cacheKey(companyID string) string {
	return cacheKeyPrefix + companyID
}

// Read returns the persisted state, or nil if it was never written.
// A corrupt entry is reported as an error; callers treat it as absent.
func (c *Cache) Read(ctx context.Context, companyID string) (*State, error) {
	var st State
	err := kv.GetJSON(ctx, c.store, cacheKey(companyID), &st)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if st.LastSequence < 0 {
		return nil, fmt.Errorf("sequence cache: negative sequence %d for %s", st.LastSequence, companyID)
	}
	return &st, nil
}

// Write replaces the persisted state.
func (c *Cache) Write(ctx context.Context, companyID string, st State) error {
	return kv.PutJSON(ctx, c.store, cacheKey(companyID), st)
}
