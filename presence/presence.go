// Package presence tracks which players are online anywhere on the
// logical service, not just on this node. It backs the request
// protocol's "is this acceptor still reachable" checks and lets chat
// relay target players on other nodes.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/sacredlabyrinth/clansync/bus"
)

// Roster is how the host exposes its own online players.
type Roster interface {
	OnlinePlayers() []string
}

type messageType string

const (
	typeJoin        messageType = "join"
	typeQuit        messageType = "quit"
	typeSync        messageType = "sync"
	typeRequestSync messageType = "request_sync"
)

type message struct {
	Type    messageType `json:"type"`
	Player  string      `json:"player,omitempty"`
	Node    string      `json:"node,omitempty"`
	Players []string    `json:"players,omitempty"`
}

// Tracker maintains the remote player → node map. Local players are
// answered from the host's Roster directly, so the map only ever holds
// other nodes' players.
type Tracker struct {
	node    string
	remote  *xsync.MapOf[string, string]
	roster  Roster
	pub     *bus.Publisher
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewTracker(node string, roster Roster, pub *bus.Publisher, logger *slog.Logger) *Tracker {
	return &Tracker{
		node:   node,
		remote: xsync.NewMapOf[string, string](),
		roster: roster,
		pub:    pub,
		// one roster re-publish per 2s keeps a sync storm from
		// amplifying across nodes
		limiter: rate.NewLimiter(rate.Limit(0.5), 1),
		logger:  logger.WithGroup("presence"),
	}
}

// Online reports whether the player is online on any node.
func (t *Tracker) Online(name string) bool {
	if t.localOnline(name) {
		return true
	}
	_, ok := t.remote.Load(name)
	return ok
}

// NodeOf returns the node a remote player is on.
func (t *Tracker) NodeOf(name string) (string, bool) {
	return t.remote.Load(name)
}

// Remote returns a snapshot of all players online on other nodes.
func (t *Tracker) Remote() []string {
	var names []string
	t.remote.Range(func(name, _ string) bool {
		names = append(names, name)
		return true
	})
	return names
}

func (t *Tracker) localOnline(name string) bool {
	if t.roster == nil {
		return false
	}
	for _, p := range t.roster.OnlinePlayers() {
		if p == name {
			return true
		}
	}
	return false
}

// PublishJoin announces a player joining this node.
func (t *Tracker) PublishJoin(ctx context.Context, player string) {
	t.publish(ctx, message{Type: typeJoin, Player: player, Node: t.node})
}

// PublishQuit announces a player leaving this node.
func (t *Tracker) PublishQuit(ctx context.Context, player string) {
	t.publish(ctx, message{Type: typeQuit, Player: player, Node: t.node})
}

// PublishSync broadcasts this node's full roster.
func (t *Tracker) PublishSync(ctx context.Context) {
	var players []string
	if t.roster != nil {
		players = t.roster.OnlinePlayers()
	}
	t.publish(ctx, message{Type: typeSync, Node: t.node, Players: players})
}

// RequestSync asks every node to re-publish its roster. Used after
// (re)connecting, when the remote map starts cold.
func (t *Tracker) RequestSync(ctx context.Context) {
	t.remote.Clear()
	t.publish(ctx, message{Type: typeRequestSync, Node: t.node})
}

func (t *Tracker) publish(ctx context.Context, m message) {
	raw, err := json.Marshal(m)
	if err != nil {
		t.logger.Warn("encode failed", "type", m.Type, "error", err)
		return
	}
	t.pub.Publish(ctx, bus.ChannelOnline, string(raw))
}

// Handler builds the bus handler for the online channel.
func (t *Tracker) Handler() bus.Handler {
	return func(payload string) {
		var m message
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			t.logger.Warn("dropping malformed presence message", "error", err)
			return
		}

		switch m.Type {
		case typeJoin:
			if m.Player != "" {
				t.remote.Store(m.Player, m.Node)
			}
		case typeQuit:
			t.remote.Delete(m.Player)
		case typeSync:
			// replace everything previously attributed to that node
			t.remote.Range(func(name, node string) bool {
				if node == m.Node {
					t.remote.Delete(name)
				}
				return true
			})
			for _, p := range m.Players {
				t.remote.Store(p, m.Node)
			}
		case typeRequestSync:
			if t.limiter.Allow() {
				t.PublishSync(context.Background())
			}
		default:
			t.logger.Warn("dropping presence message of unknown type", "type", m.Type)
		}
	}
}
