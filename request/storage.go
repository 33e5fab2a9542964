package request

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sacredlabyrinth/clansync/codec"
)

const (
	keyPrefix = "clansync:requests:"
	indexKey  = "clansync:requests:index"
)

// Storage keeps the authoritative copy of every live request in the
// shared store: one JSON value per request plus an index set of keys.
// Both carry the request TTL, so abandoned requests evaporate on their
// own; the index self-heals on read when a value expired under it.
type Storage struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	ready  func() bool
	codec  codec.JSON[*Request]
	logger *slog.Logger
}

func NewStorage(rdb redis.UniversalClient, ttl time.Duration, ready func() bool, logger *slog.Logger) *Storage {
	if ready == nil {
		ready = func() bool { return true }
	}
	log := logger.WithGroup("requests")
	return &Storage{
		rdb:    rdb,
		ttl:    ttl,
		ready:  ready,
		codec:  codec.JSON[*Request]{Logger: log},
		logger: log,
	}
}

// Normalize maps a request key to its canonical, case-insensitive form.
func Normalize(key string) string { return strings.ToLower(key) }

func storeKey(key string) string { return keyPrefix + Normalize(key) }

// Store writes the authoritative copy of req under key, refreshing both
// the value's and the index's TTL.
func (s *Storage) Store(ctx context.Context, key string, req *Request) bool {
	return s.StoreTTL(ctx, key, req, s.ttl)
}

// StoreTTL is Store with an explicit lifetime. Vote updates use the
// shorter vote TTL so a request that started collecting votes cannot
// linger the full request lifetime.
func (s *Storage) StoreTTL(ctx context.Context, key string, req *Request, ttl time.Duration) bool {
	if !s.ready() {
		return false
	}
	raw, err := s.codec.Encode(req)
	if err != nil {
		s.logger.Warn("encode failed", "key", key, "error", err)
		return false
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, storeKey(key), raw, ttl)
	pipe.SAdd(ctx, indexKey, Normalize(key))
	pipe.Expire(ctx, indexKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("store failed", "key", key, "error", err)
		return false
	}
	return true
}

// Get fetches the authoritative copy of key.
func (s *Storage) Get(ctx context.Context, key string) (*Request, bool) {
	if !s.ready() {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, storeKey(key)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("get failed", "key", key, "error", err)
		return nil, false
	}
	return s.codec.Decode(raw)
}

// Has reports whether a live request exists under key.
func (s *Storage) Has(ctx context.Context, key string) bool {
	if !s.ready() {
		return false
	}
	n, err := s.rdb.Exists(ctx, storeKey(key)).Result()
	if err != nil {
		s.logger.Warn("exists failed", "key", key, "error", err)
		return false
	}
	return n > 0
}

// Remove deletes key's value and its index entry. Removing an absent
// key is a no-op.
func (s *Storage) Remove(ctx context.Context, key string) {
	if !s.ready() {
		return
	}
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, storeKey(key))
	pipe.SRem(ctx, indexKey, Normalize(key))
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("remove failed", "key", key, "error", err)
	}
}

// Keys lists every live request key, pruning index entries whose value
// has expired.
func (s *Storage) Keys(ctx context.Context) []string {
	if !s.ready() {
		return nil
	}
	members, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		s.logger.Warn("index read failed", "error", err)
		return nil
	}

	var live []string
	for _, key := range members {
		n, err := s.rdb.Exists(ctx, storeKey(key)).Result()
		if err != nil {
			continue
		}
		if n == 0 {
			s.rdb.SRem(ctx, indexKey, key)
			continue
		}
		live = append(live, key)
	}
	return live
}

// All fetches every live request, keyed canonically.
func (s *Storage) All(ctx context.Context) map[string]*Request {
	out := make(map[string]*Request)
	for _, key := range s.Keys(ctx) {
		if req, ok := s.Get(ctx, key); ok {
			out[key] = req
		}
	}
	return out
}

// Clear removes every request and the index. Used on shutdown of the
// last node and in tests.
func (s *Storage) Clear(ctx context.Context) {
	for _, key := range s.Keys(ctx) {
		s.rdb.Del(ctx, storeKey(key))
	}
	s.rdb.Del(ctx, indexKey)
}
