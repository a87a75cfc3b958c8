// Package cache implements a read-through cache over a string key-value
// backend with per-entry TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/user_auth/pkg/logging"
	"github.com/Skotchmaster/user_auth/pkg/metrics"
)

const DefaultTTL = 3600 * time.Second

// Backend is a SETEX/GET/DEL style store holding string values.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	SetEX(ctx context.Context, key string, ttl time.Duration, value string) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type Cache struct {
	name    string
	backend Backend
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
}

func New(name string, backend Backend, ttl time.Duration, m *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{name: name, backend: backend, ttl: ttl, metrics: m}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// Set stores value under key and reports whether the backend acknowledged
// the write. Failures are logged, never returned.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		logging.FromContext(ctx).Error("cache_set_failed", "cache", c.name, "reason", "cannot encode value", "error", err)
		c.metrics.CacheWriteFailed(c.name)
		return false
	}
	return c.setRaw(ctx, key, string(raw), ttl)
}

func (c *Cache) setRaw(ctx context.Context, key, raw string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttl
	}
	ok, err := c.backend.SetEX(ctx, key, ttl, raw)
	if err != nil || !ok {
		logging.FromContext(ctx).Warn("cache_set_failed", "cache", c.name, "key", key, "error", err)
		c.metrics.CacheWriteFailed(c.name)
		return false
	}
	return true
}

// Get decodes the cached value into dst. A backend or decode error counts as a miss.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	raw, ok := c.lookup(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		logging.FromContext(ctx).Warn("cache_decode_failed", "cache", c.name, "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cache) lookup(ctx context.Context, key string) (string, bool) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		logging.FromContext(ctx).Warn("cache_get_failed", "cache", c.name, "key", key, "error", err)
		c.metrics.CacheResult(c.name, "read_error")
		return "", false
	}
	return raw, ok
}

// Invalidate drops keys so the next read goes to the source of truth.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.backend.Del(ctx, keys...); err != nil {
		logging.FromContext(ctx).Warn("cache_invalidate_failed", "cache", c.name, "keys", keys, "error", err)
	}
}

// GetOrLoad returns the cached value for key, or invokes loader once, stores
// its result for ttl and returns it. Loader errors are returned and never
// cached. Concurrent misses on one key share a single loader call; every
// caller gets its own decoded copy of the value.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	var out T
	if c.Get(ctx, key, &out) {
		c.metrics.CacheResult(c.name, "hit")
		return out, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if raw, ok := c.lookup(ctx, key); ok {
			return raw, nil
		}
		c.metrics.CacheResult(c.name, "miss")

		loaded, err := loader(context.WithoutCancel(ctx))
		if err != nil {
			c.metrics.CacheResult(c.name, "load_error")
			return nil, err
		}
		raw, err := json.Marshal(loaded)
		if err != nil {
			return nil, fmt.Errorf("cache %s: encode %q: %w", c.name, key, err)
		}
		c.setRaw(ctx, key, string(raw), ttl)
		return string(raw), nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	var loaded T
	if err := json.Unmarshal([]byte(v.(string)), &loaded); err != nil {
		return loaded, fmt.Errorf("cache %s: decode %q: %w", c.name, key, err)
	}
	return loaded, nil
}
