package presence

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacredlabyrinth/clansync/bus"
)

type stubRoster struct{ players []string }

func (s stubRoster) OnlinePlayers() []string { return s.players }

func newTracker(t *testing.T, node string, local ...string) (*Tracker, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })

	pub := bus.NewPublisher(rdb, node, nil, slog.Default())
	return NewTracker(node, stubRoster{players: local}, pub, slog.Default()), rdb
}

func TestLocalRosterWins(t *testing.T) {
	tr, _ := newTracker(t, "node-a", "alice")

	assert.True(t, tr.Online("alice"))
	assert.False(t, tr.Online("bob"))
	assert.Empty(t, tr.Remote())
}

func TestJoinQuit(t *testing.T) {
	tr, _ := newTracker(t, "node-a")
	h := tr.Handler()

	h(`{"type":"join","player":"bob","node":"node-b"}`)
	assert.True(t, tr.Online("bob"))
	node, ok := tr.NodeOf("bob")
	require.True(t, ok)
	assert.Equal(t, "node-b", node)

	h(`{"type":"quit","player":"bob","node":"node-b"}`)
	assert.False(t, tr.Online("bob"))
}

func TestSyncReplacesNodeRoster(t *testing.T) {
	tr, _ := newTracker(t, "node-a")
	h := tr.Handler()

	h(`{"type":"join","player":"bob","node":"node-b"}`)
	h(`{"type":"join","player":"carol","node":"node-b"}`)
	h(`{"type":"join","player":"zed","node":"node-c"}`)

	// node-b re-publishes its roster: carol left in the meantime
	h(`{"type":"sync","node":"node-b","players":["bob","dave"]}`)

	assert.ElementsMatch(t, []string{"bob", "dave", "zed"}, tr.Remote())
	assert.False(t, tr.Online("carol"))
}

func TestMalformedPresenceDropped(t *testing.T) {
	tr, _ := newTracker(t, "node-a")
	h := tr.Handler()

	h(`not json`)
	h(`{"type":"levitate","player":"bob"}`)
	h(`{"type":"join","player":"","node":"node-b"}`)
	assert.Empty(t, tr.Remote())
}

func TestRequestSyncAnswerThrottled(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sub := rdb.Subscribe(context.Background(), bus.ChannelOnline)
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })

	pub := bus.NewPublisher(rdb, "node-a", nil, slog.Default())
	tr := NewTracker("node-a", stubRoster{players: []string{"alice"}}, pub, slog.Default())
	h := tr.Handler()

	// a burst of sync requests yields one roster answer
	for i := 0; i < 5; i++ {
		h(`{"type":"request_sync","node":"node-b"}`)
	}

	msg, err := sub.ReceiveTimeout(context.Background(), time.Second)
	require.NoError(t, err)
	m, ok := msg.(*redis.Message)
	require.True(t, ok)
	assert.Contains(t, m.Payload, `"sync"`)
	assert.Contains(t, m.Payload, "alice")

	_, err = sub.ReceiveTimeout(context.Background(), 200*time.Millisecond)
	assert.Error(t, err, "further answers suppressed by the limiter")
}

func TestRequestSyncClearsRemoteView(t *testing.T) {
	tr, _ := newTracker(t, "node-a")
	tr.Handler()(`{"type":"join","player":"bob","node":"node-b"}`)
	require.NotEmpty(t, tr.Remote())

	tr.RequestSync(context.Background())
	assert.Empty(t, tr.Remote(), "stale view dropped until syncs arrive")
}
