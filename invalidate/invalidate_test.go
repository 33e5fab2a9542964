package invalidate

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacredlabyrinth/clansync/entity"
	"github.com/sacredlabyrinth/clansync/localcache"
)

func TestParse(t *testing.T) {
	tests := []struct {
		payload string
		want    Notice
		ok      bool
	}{
		{"all", Notice{Op: OpAll}, true},
		{"clan:acme", Notice{Kind: KindClan, Op: OpInvalidate, ID: "acme"}, true},
		{"clan:delete:acme", Notice{Kind: KindClan, Op: OpDelete, ID: "acme"}, true},
		{"clan:new:acme", Notice{Kind: KindClan, Op: OpNew, ID: "acme"}, true},
		{"player:3f2a", Notice{Kind: KindPlayer, Op: OpInvalidate, ID: "3f2a"}, true},
		{"player:delete:3f2a", Notice{Kind: KindPlayer, Op: OpDelete, ID: "3f2a"}, true},

		{"", Notice{}, false},
		{"clan", Notice{}, false},
		{"clan:", Notice{}, false},
		{"clan:delete:", Notice{}, false},
		{"clan:explode:acme", Notice{}, false},
		{"widget:acme", Notice{}, false},
		{"ALL", Notice{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, ok := Parse(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for _, n := range []Notice{
		{Op: OpAll},
		{Kind: KindClan, Op: OpInvalidate, ID: "acme"},
		{Kind: KindPlayer, Op: OpDelete, ID: "3f2a"},
		{Kind: KindClan, Op: OpNew, ID: "acme"},
	} {
		got, ok := Parse(Format(n))
		require.True(t, ok)
		assert.Equal(t, n, got)
	}
}

func testStores(t *testing.T) Stores {
	t.Helper()
	clans := localcache.New[*entity.Clan](time.Minute)
	players := localcache.New[*entity.ClanPlayer](time.Minute)
	t.Cleanup(clans.Stop)
	t.Cleanup(players.Stop)
	return Stores{Clans: clans, Players: players}
}

func TestHandlerEvicts(t *testing.T) {
	stores := testStores(t)
	stores.Clans.Put("acme", &entity.Clan{Tag: "acme"})
	stores.Players.Put("3f2a", &entity.ClanPlayer{UUID: "3f2a"})

	h := NewHandler(stores, nil, slog.Default())

	h("clan:ACME") // ids case-insensitive
	_, ok := stores.Clans.Get("acme")
	assert.False(t, ok)

	h("player:delete:3f2a")
	_, ok = stores.Players.Get("3f2a")
	assert.False(t, ok)

	// malformed payloads change nothing
	stores.Clans.Put("acme", &entity.Clan{Tag: "acme"})
	h("clan:explode:acme")
	_, ok = stores.Clans.Get("acme")
	assert.True(t, ok)

	h("all")
	assert.Zero(t, stores.Clans.Len())
	assert.Zero(t, stores.Players.Len())
}

type recordingObserver struct{ seen []Notice }

func (r *recordingObserver) Invalidated(n Notice) { r.seen = append(r.seen, n) }

func TestHandlerObserver(t *testing.T) {
	obs := &recordingObserver{}
	h := NewHandler(testStores(t), obs, slog.Default())

	h("clan:acme")
	h("garbage:")
	h("all")

	require.Len(t, obs.seen, 2)
	assert.Equal(t, Notice{Kind: KindClan, Op: OpInvalidate, ID: "acme"}, obs.seen[0])
	assert.Equal(t, Notice{Op: OpAll}, obs.seen[1])
}

func TestUpdateHandlerRefreshes(t *testing.T) {
	stores := testStores(t)
	h := NewUpdateHandler(stores, slog.Default())

	h(`clan:{"tag":"Acme","name":"Acme Corp"}`)
	clan, ok := stores.Clans.Get("acme")
	require.True(t, ok)
	assert.Equal(t, "Acme Corp", clan.Name)

	h(`player:{"uuid":"3F2A","name":"steve"}`)
	p, ok := stores.Players.Get("3f2a")
	require.True(t, ok)
	assert.Equal(t, "steve", p.Name)

	// malformed bodies and unknown kinds are dropped
	h(`clan:{broken`)
	h(`widget:{"tag":"x"}`)
	h(`no-separator`)
	assert.Equal(t, 1, stores.Clans.Len())
}
