package submission

import (
	"context"
	"fmt"

	"github.com/marmos91/formsync/pkg/kvstore"
)

const prefillPrefix = "prefill-data-"

// PrefillCache holds data used to pre-populate forms, keyed by pre-fill id.
// Entries are removed once the form they fed has been submitted.
type PrefillCache struct {
	store *kvstore.Store
}

// NewPrefillCache creates a cache over the submission namespace.
func NewPrefillCache(store *kvstore.Store) *PrefillCache {
	return &PrefillCache{store: store}
}

func prefillKey(id string) string {
	return prefillPrefix + id
}

// Get returns the cached data, nil when absent.
func (c *PrefillCache) Get(ctx context.Context, id string) (map[string]any, error) {
	data, found, err := kvstore.GetAs[map[string]any](ctx, c.store, prefillKey(id))
	if err != nil {
		return nil, fmt.Errorf("submission: prefill %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return data, nil
}

// Set caches data for id.
func (c *PrefillCache) Set(ctx context.Context, id string, data map[string]any) error {
	if err := c.store.Set(ctx, prefillKey(id), data); err != nil {
		return fmt.Errorf("submission: prefill %s: %w", id, err)
	}
	return nil
}

// Remove deletes the data for id.
func (c *PrefillCache) Remove(ctx context.Context, id string) error {
	return c.store.Remove(ctx, prefillKey(id))
}
