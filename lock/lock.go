// Package lock provides a store-backed mutual-exclusion lock for
// resources shared by every process of the logical service. A lock is
// held by whichever process wrote its random token first; release and
// extension are token-guarded on the server side, so a process whose
// hold expired can never clobber the next holder.
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "clansync:lock:"
	retryInterval = 50 * time.Millisecond
)

// Evaluated on the store so the get/del (and get/pexpire) pairs are
// atomic against competing holders.
var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Lock guards one named resource. A Lock value is not reusable across
// goroutines; create one per acquisition site.
type Lock struct {
	rdb      redis.UniversalClient
	resource string
	key      string
	token    string
	ttl      time.Duration
	held     bool
	logger   *slog.Logger
}

// New prepares a lock on resource with the given hold timeout. Nothing
// is acquired yet.
func New(rdb redis.UniversalClient, resource string, ttl time.Duration, logger *slog.Logger) *Lock {
	return &Lock{
		rdb:      rdb,
		resource: resource,
		key:      keyPrefix + resource,
		token:    uuid.NewString(),
		ttl:      ttl,
		logger:   logger.WithGroup("lock"),
	}
}

// Resource returns the name this lock guards.
func (l *Lock) Resource() string { return l.resource }

// Held reports whether the last acquire on this value succeeded and no
// release has happened since. It does not consult the store, so an
// expired hold may still read true.
func (l *Lock) Held() bool { return l.held }

// TryAcquire polls for the lock until it is won or wait has elapsed.
// A wait of zero means a single attempt.
func (l *Lock) TryAcquire(ctx context.Context, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
		if err != nil {
			l.logger.Warn("acquire attempt failed", "resource", l.resource, "error", err)
			return false
		}
		if ok {
			l.held = true
			return true
		}
		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(retryInterval):
		}
	}
}

// Release gives the lock up if this value still holds it. Releasing a
// lock that expired (and was possibly re-acquired elsewhere) is a safe
// no-op.
func (l *Lock) Release(ctx context.Context) {
	l.held = false
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int64()
	if err != nil {
		l.logger.Warn("release failed", "resource", l.resource, "error", err)
		return
	}
	if n == 0 {
		l.logger.Debug("release found lock no longer held", "resource", l.resource)
	}
}

// Extend pushes the expiry out to ttl from now, if this value still
// holds the lock. It reports whether the hold was still live.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) bool {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		l.logger.Warn("extend failed", "resource", l.resource, "error", err)
		return false
	}
	if n == 0 {
		l.held = false
		return false
	}
	return true
}
