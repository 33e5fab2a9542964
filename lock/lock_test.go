package lock

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return srv, rdb
}

func TestAcquireRelease(t *testing.T) {
	_, rdb := testClient(t)
	ctx := context.Background()

	l := New(rdb, "bank:acme", time.Second, slog.Default())
	require.True(t, l.TryAcquire(ctx, 0))
	assert.True(t, l.Held())

	// a competitor cannot get in while held
	other := New(rdb, "bank:acme", time.Second, slog.Default())
	assert.False(t, other.TryAcquire(ctx, 0))

	l.Release(ctx)
	assert.False(t, l.Held())
	assert.True(t, other.TryAcquire(ctx, 0))
}

func TestDistinctResourcesIndependent(t *testing.T) {
	_, rdb := testClient(t)
	ctx := context.Background()

	a := New(rdb, "bank:acme", time.Second, slog.Default())
	b := New(rdb, "bank:zulu", time.Second, slog.Default())
	assert.True(t, a.TryAcquire(ctx, 0))
	assert.True(t, b.TryAcquire(ctx, 0))
}

func TestAcquireWaitsForRelease(t *testing.T) {
	_, rdb := testClient(t)
	ctx := context.Background()

	first := New(rdb, "disband:acme", time.Second, slog.Default())
	require.True(t, first.TryAcquire(ctx, 0))

	go func() {
		time.Sleep(120 * time.Millisecond)
		first.Release(ctx)
	}()

	second := New(rdb, "disband:acme", time.Second, slog.Default())
	assert.True(t, second.TryAcquire(ctx, time.Second))
}

func TestExpiredHoldIsReacquirable(t *testing.T) {
	srv, rdb := testClient(t)
	ctx := context.Background()

	stale := New(rdb, "bank:acme", 200*time.Millisecond, slog.Default())
	require.True(t, stale.TryAcquire(ctx, 0))

	srv.FastForward(time.Second)

	next := New(rdb, "bank:acme", time.Second, slog.Default())
	require.True(t, next.TryAcquire(ctx, 0))

	// the stale holder's release must not free the new holder's record
	stale.Release(ctx)
	third := New(rdb, "bank:acme", time.Second, slog.Default())
	assert.False(t, third.TryAcquire(ctx, 0))
}

func TestExtend(t *testing.T) {
	srv, rdb := testClient(t)
	ctx := context.Background()

	l := New(rdb, "bank:acme", 200*time.Millisecond, slog.Default())
	require.True(t, l.TryAcquire(ctx, 0))

	require.True(t, l.Extend(ctx, 5*time.Second))
	srv.FastForward(time.Second)

	other := New(rdb, "bank:acme", time.Second, slog.Default())
	assert.False(t, other.TryAcquire(ctx, 0), "extended hold survived the original ttl")

	// after expiry the extend reports the hold gone
	srv.FastForward(10 * time.Second)
	assert.False(t, l.Extend(ctx, time.Second))
	assert.False(t, l.Held())
}

func TestMutualExclusion(t *testing.T) {
	_, rdb := testClient(t)
	ctx := context.Background()

	var inSection, conflicts int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := New(rdb, "bank:acme", time.Second, slog.Default())
			if !l.TryAcquire(ctx, 2*time.Second) {
				return
			}
			mu.Lock()
			inSection++
			if inSection > 1 {
				conflicts++
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
			l.Release(ctx)
		}()
	}
	wg.Wait()
	assert.Zero(t, conflicts)
}
