package memory

import (
	"context"
	"errors"
	"log"

	"shadybot/pkg/cache"
)

// CachedStore puts a read-through Redis cache in front of bot settings.
// Consent and archive reads always go to the underlying store.
type CachedStore struct {
	Store
	cache *cache.Cache
}

func NewCachedStore(store Store, cache *cache.Cache) *CachedStore {
	return &CachedStore{
		Store: store,
		cache: cache,
	}
}

func (c *CachedStore) GetSetting(ctx context.Context, key, def string) (string, error) {
	cacheKey := c.cache.Key("setting", key)

	val, err := c.cache.Get(ctx, cacheKey)
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Printf("Error reading setting %s from cache: %v", key, err)
	}

	val, err = c.Store.GetSetting(ctx, key, def)
	if err != nil {
		return val, err
	}

	if setErr := c.cache.Set(ctx, cacheKey, val, cache.SettingsTTL); setErr != nil {
		log.Printf("Error caching setting %s: %v", key, setErr)
	}
	return val, nil
}

func (c *CachedStore) SetSetting(ctx context.Context, key, value string) error {
	if err := c.Store.SetSetting(ctx, key, value); err != nil {
		return err
	}

	if err := c.cache.Delete(ctx, c.cache.Key("setting", key)); err != nil {
		log.Printf("Error invalidating cached setting %s: %v", key, err)
	}
	return nil
}

func (c *CachedStore) Close() error {
	if err := c.cache.Close(); err != nil {
		log.Printf("Error closing Redis cache: %v", err)
	}
	return c.Store.Close()
}
