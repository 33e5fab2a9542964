// Package cache is the shared TTL object cache: entities serialized
// into the store under a type prefix, readable by every process of the
// logical service. All operations degrade to misses/no-ops while the
// coordination layer is not ready, so callers never branch on
// connectivity themselves.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/redis/go-redis/v9"

	"github.com/sacredlabyrinth/clansync/codec"
)

const (
	ClanPrefix   = "clansync:clan:"
	PlayerPrefix = "clansync:player:"
)

// Cache exposes one entity type's slice of the shared store. Keys are
// case-insensitive; they are lowercased before touching the store.
type Cache[V any] struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	codec  codec.Codec[V]
	ready  func() bool
	logger *slog.Logger
}

func New[V any](rdb redis.UniversalClient, prefix string, ttl time.Duration, c codec.Codec[V], ready func() bool, logger *slog.Logger) *Cache[V] {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Cache[V]{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		codec:  c,
		ready:  ready,
		logger: logger.WithGroup("cache"),
	}
}

func (c *Cache[V]) storeKey(key string) string {
	return c.prefix + strings.ToLower(key)
}

// Get fetches and decodes the entry for key. Misses, store errors and
// undecodable entries all read as (zero, false).
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	if !c.ready() {
		return zero, false
	}

	raw, err := c.rdb.Get(ctx, c.storeKey(key)).Result()
	if err == redis.Nil {
		c.counter("misses").Inc()
		return zero, false
	}
	if err != nil {
		c.logger.Warn("get failed", "key", key, "error", err)
		c.counter("errors").Inc()
		return zero, false
	}

	v, ok := c.codec.Decode(raw)
	if !ok {
		// poisoned entry, drop it so the next writer repopulates
		c.rdb.Del(ctx, c.storeKey(key))
		c.counter("misses").Inc()
		return zero, false
	}
	c.counter("hits").Inc()
	return v, true
}

// Put writes v under key with the cache's configured lifetime.
func (c *Cache[V]) Put(ctx context.Context, key string, v V) bool {
	return c.PutTTL(ctx, key, v, c.ttl)
}

// PutTTL writes v under key with an explicit lifetime.
func (c *Cache[V]) PutTTL(ctx context.Context, key string, v V, ttl time.Duration) bool {
	if !c.ready() {
		return false
	}

	raw, err := c.codec.Encode(v)
	if err != nil {
		c.logger.Warn("encode failed", "key", key, "error", err)
		return false
	}
	if err := c.rdb.Set(ctx, c.storeKey(key), raw, ttl).Err(); err != nil {
		c.logger.Warn("put failed", "key", key, "error", err)
		c.counter("errors").Inc()
		return false
	}
	return true
}

// Remove deletes the entry for key, reporting whether one existed.
func (c *Cache[V]) Remove(ctx context.Context, key string) bool {
	if !c.ready() {
		return false
	}
	n, err := c.rdb.Del(ctx, c.storeKey(key)).Result()
	if err != nil {
		c.logger.Warn("remove failed", "key", key, "error", err)
		return false
	}
	return n > 0
}

// Exists reports whether key currently has a live entry.
func (c *Cache[V]) Exists(ctx context.Context, key string) bool {
	if !c.ready() {
		return false
	}
	n, err := c.rdb.Exists(ctx, c.storeKey(key)).Result()
	if err != nil {
		c.logger.Warn("exists failed", "key", key, "error", err)
		return false
	}
	return n > 0
}

// Refresh resets key's lifetime without rewriting the value. It reports
// whether the entry was still live.
func (c *Cache[V]) Refresh(ctx context.Context, key string) bool {
	if !c.ready() {
		return false
	}
	ok, err := c.rdb.Expire(ctx, c.storeKey(key), c.ttl).Result()
	if err != nil {
		c.logger.Warn("refresh failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (c *Cache[V]) counter(outcome string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(
		"clansync_cache_ops_total{prefix=%q,outcome=%q}", c.prefix, outcome))
}
