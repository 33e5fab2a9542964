package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacredlabyrinth/clansync/codec"
	"github.com/sacredlabyrinth/clansync/entity"
)

func testCache(t *testing.T) (*miniredis.Miniredis, *Cache[*entity.Clan]) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c := New[*entity.Clan](rdb, ClanPrefix, time.Minute,
		codec.JSON[*entity.Clan]{}, nil, slog.Default())
	return srv, c
}

func TestPutGet(t *testing.T) {
	_, c := testCache(t)
	ctx := context.Background()

	clan := &entity.Clan{Tag: "acme", Name: "Acme Corp", Verified: true}
	require.True(t, c.Put(ctx, "acme", clan))

	got, ok := c.Get(ctx, "acme")
	require.True(t, ok)
	assert.Equal(t, clan, got)

	// keys are case-insensitive
	got, ok = c.Get(ctx, "ACME")
	require.True(t, ok)
	assert.Equal(t, "acme", got.Tag)

	_, ok = c.Get(ctx, "nosuch")
	assert.False(t, ok)
}

func TestEntriesExpire(t *testing.T) {
	srv, c := testCache(t)
	ctx := context.Background()

	require.True(t, c.Put(ctx, "acme", &entity.Clan{Tag: "acme"}))
	require.True(t, c.Exists(ctx, "acme"))

	srv.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "acme")
	assert.False(t, ok, "a miss, not an error, after expiry")
	assert.False(t, c.Exists(ctx, "acme"))
}

func TestRefreshExtendsLifetime(t *testing.T) {
	srv, c := testCache(t)
	ctx := context.Background()

	require.True(t, c.Put(ctx, "acme", &entity.Clan{Tag: "acme"}))
	srv.FastForward(45 * time.Second)
	require.True(t, c.Refresh(ctx, "acme"))
	srv.FastForward(45 * time.Second)

	assert.True(t, c.Exists(ctx, "acme"))

	srv.FastForward(2 * time.Minute)
	assert.False(t, c.Refresh(ctx, "acme"))
}

func TestRemove(t *testing.T) {
	_, c := testCache(t)
	ctx := context.Background()

	require.True(t, c.Put(ctx, "acme", &entity.Clan{Tag: "acme"}))
	assert.True(t, c.Remove(ctx, "acme"))
	assert.False(t, c.Remove(ctx, "acme"), "second remove is a miss")
}

func TestPoisonedEntryReadsAsMiss(t *testing.T) {
	srv, c := testCache(t)
	ctx := context.Background()

	require.NoError(t, srv.Set(ClanPrefix+"acme", "definitely not json"))
	_, ok := c.Get(ctx, "acme")
	assert.False(t, ok)
	// and the bad entry is gone so a writer can repopulate
	assert.False(t, srv.Exists(ClanPrefix+"acme"))
}

func TestNotReadyDegrades(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })

	down := New[*entity.Clan](rdb, ClanPrefix, time.Minute,
		codec.JSON[*entity.Clan]{}, func() bool { return false }, slog.Default())
	ctx := context.Background()

	assert.False(t, down.Put(ctx, "acme", &entity.Clan{Tag: "acme"}))
	_, ok := down.Get(ctx, "acme")
	assert.False(t, ok)
	assert.False(t, down.Exists(ctx, "acme"))
	assert.False(t, down.Remove(ctx, "acme"))
	assert.False(t, down.Refresh(ctx, "acme"))
}
