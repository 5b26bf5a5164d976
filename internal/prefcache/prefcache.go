// Package prefcache keeps recently used callback preferences in memory.
//
// Preferences are read on every task completion to decide whether to call
// the user back, but change rarely. Entries expire after a short TTL so an
// update made through another replica becomes visible without coordination.
package prefcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ashita-ai/conductor/internal/model"
	"github.com/ashita-ai/conductor/internal/storage"
)

// Store is the persistence the cache sits in front of.
type Store interface {
	GetPreferences(ctx context.Context, userID string) (model.CallbackPreferences, error)
	UpsertPreferences(ctx context.Context, p model.CallbackPreferences) (model.CallbackPreferences, error)
}

// Cache is a read-through, write-through preference cache.
//
// Users without stored preferences get defaults: no phone number, callbacks
// off, and the configured quiet window. Defaults are cached too, so repeated
// lookups for such users don't hit the database.
type Cache struct {
	store    Store
	lru      *expirable.LRU[string, model.CallbackPreferences]
	defaults model.QuietHours
}

// New creates a cache holding at most size entries for ttl each.
func New(store Store, size int, ttl time.Duration, defaults model.QuietHours) *Cache {
	return &Cache{
		store:    store,
		lru:      expirable.NewLRU[string, model.CallbackPreferences](size, nil, ttl),
		defaults: defaults,
	}
}

// Get returns the preferences for userID.
func (c *Cache) Get(ctx context.Context, userID string) (model.CallbackPreferences, error) {
	if p, ok := c.lru.Get(userID); ok {
		return p, nil
	}
	p, err := c.store.GetPreferences(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		p = model.CallbackPreferences{UserID: userID, QuietHours: c.defaults}
	case err != nil:
		return model.CallbackPreferences{}, fmt.Errorf("prefcache: get: %w", err)
	}
	c.lru.Add(userID, p)
	return p, nil
}

// Put persists p and refreshes the cached copy.
func (c *Cache) Put(ctx context.Context, p model.CallbackPreferences) (model.CallbackPreferences, error) {
	saved, err := c.store.UpsertPreferences(ctx, p)
	if err != nil {
		c.lru.Remove(p.UserID)
		return model.CallbackPreferences{}, fmt.Errorf("prefcache: put: %w", err)
	}
	c.lru.Add(saved.UserID, saved)
	return saved, nil
}

// Invalidate drops the cached entry for userID.
func (c *Cache) Invalidate(userID string) {
	c.lru.Remove(userID)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
