// Package cache is the two-tier read cache in front of the order and
// catalog stores.
//
// Reads go local tier -> shared tier -> compute. Keys embed a namespace
// version (see Versioner) so a bump orphans every older entry without
// deleting anything from the shared tier.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// Shared is the cross-instance cache tier
type Shared interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache combines the local and shared tiers
type Cache struct {
	local  *Local
	shared Shared
	logger *zap.Logger
}

// New creates a cache. shared may be nil, in which case only the local tier is used.
func New(local *Local, shared Shared) *Cache {
	return &Cache{
		local:  local,
		shared: shared,
		logger: util.GetLogger(),
	}
}

// Local returns the local tier
func (c *Cache) Local() *Local {
	return c.local
}

// Get looks key up in both tiers. Shared tier errors count as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.local.Get(key); ok {
		util.CacheHitsTotal.WithLabelValues("local").Inc()
		return v, true
	}

	if c.shared != nil {
		v, ok, err := c.shared.Get(ctx, key)
		if err != nil {
			c.logger.Warn("Shared cache read failed", zap.String("key", key), zap.Error(err))
		}
		if err == nil && ok {
			util.CacheHitsTotal.WithLabelValues("shared").Inc()
			c.local.Set(key, v, c.local.maxTTL)
			return v, true
		}
	}

	util.CacheMissesTotal.Inc()
	return nil, false
}

// Set writes the local tier and, best-effort, the shared tier
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.local.Set(key, value, ttl)

	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("Shared cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Fetch returns the cached value under key or computes, stores and returns it
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if raw, ok := c.Get(ctx, key); ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key))
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Cache value not serializable", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	c.Set(ctx, key, raw, ttl)
	return v, nil
}
