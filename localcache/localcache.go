// Package localcache holds each process's in-memory working set of
// entities. Entries age out on their own; the invalidation propagator
// evicts them early when another process reports a change.
package localcache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Store is a TTL-bounded in-memory map. It is safe for concurrent use.
type Store[V any] struct {
	inner *ttlcache.Cache[string, V]
}

func New[V any](ttl time.Duration) *Store[V] {
	inner := ttlcache.New(
		ttlcache.WithTTL[string, V](ttl),
		ttlcache.WithDisableTouchOnHit[string, V](),
	)
	go inner.Start()
	return &Store[V]{inner: inner}
}

func (s *Store[V]) Get(key string) (V, bool) {
	item := s.inner.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

func (s *Store[V]) Put(key string, v V) {
	s.inner.Set(key, v, ttlcache.DefaultTTL)
}

func (s *Store[V]) Delete(key string) {
	s.inner.Delete(key)
}

func (s *Store[V]) Purge() {
	s.inner.DeleteAll()
}

func (s *Store[V]) Len() int {
	return s.inner.Len()
}

// Stop halts the background expirer. The store stays readable.
func (s *Store[V]) Stop() {
	s.inner.Stop()
}
