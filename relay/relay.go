// Package relay carries chat and broadcasts between nodes so a
// conversation spans the whole logical service. Local delivery is the
// host's job, behind the Messenger interface.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/sacredlabyrinth/clansync/bus"
)

// Scope says who a relayed chat line is for.
type Scope string

const (
	ScopeClan    Scope = "clan"
	ScopeAlly    Scope = "ally"
	ScopePrivate Scope = "private"
)

// ChatMessage is the wire form of one relayed chat line.
type ChatMessage struct {
	Scope      Scope  `json:"scope"`
	ClanTag    string `json:"clanTag,omitempty"`
	Sender     string `json:"sender"`
	SenderUUID string `json:"senderUuid,omitempty"`
	Target     string `json:"target,omitempty"`
	Message    string `json:"message"`
	Raw        string `json:"raw,omitempty"`
	Spy        string `json:"spy,omitempty"`
}

// Messenger delivers relayed content to players on this node.
type Messenger interface {
	// DeliverClan shows a clan chat line to the clan's local members,
	// and spy to local moderators with chat-spy enabled.
	DeliverClan(clanTag, message, spy string)

	// DeliverAlly shows an ally chat line to local members of the clan
	// and its allies.
	DeliverAlly(clanTag, message, spy string)

	// DeliverPlayer shows a private line to one player, reporting
	// whether that player is on this node.
	DeliverPlayer(name, message string) bool

	// BroadcastLocal shows a service-wide announcement to everyone on
	// this node.
	BroadcastLocal(message string)
}

// Relay publishes outbound chat and handles inbound chat from other
// nodes.
type Relay struct {
	pub       *bus.Publisher
	messenger Messenger
	logger    *slog.Logger
}

func New(pub *bus.Publisher, messenger Messenger, logger *slog.Logger) *Relay {
	return &Relay{
		pub:       pub,
		messenger: messenger,
		logger:    logger.WithGroup("relay"),
	}
}

// Send relays one chat line to every other node. Local delivery has
// already happened by the time the host calls this.
func (r *Relay) Send(ctx context.Context, m ChatMessage) {
	raw, err := json.Marshal(m)
	if err != nil {
		r.logger.Warn("encode failed", "scope", m.Scope, "error", err)
		return
	}
	r.pub.Publish(ctx, bus.ChannelChat, string(raw))
}

// Broadcast announces a line to every player on every node, this one
// included. The raw envelope makes this node pick the line up from the
// bus like any other; when the bus is down it still shows locally.
func (r *Relay) Broadcast(ctx context.Context, message string) {
	if !r.pub.PublishRaw(ctx, bus.ChannelBroadcast, message) {
		r.messenger.BroadcastLocal(message)
	}
}

// ChatHandler builds the bus handler for the chat channel.
func (r *Relay) ChatHandler() bus.Handler {
	return func(payload string) {
		var m ChatMessage
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			r.logger.Warn("dropping malformed chat message", "error", err)
			return
		}

		switch m.Scope {
		case ScopeClan:
			r.messenger.DeliverClan(m.ClanTag, m.Message, m.Spy)
		case ScopeAlly:
			r.messenger.DeliverAlly(m.ClanTag, m.Message, m.Spy)
		case ScopePrivate:
			if !r.messenger.DeliverPlayer(m.Target, m.Message) {
				r.logger.Debug("private message target not on this node", "target", m.Target)
			}
		default:
			r.logger.Warn("dropping chat message of unknown scope", "scope", m.Scope)
		}
	}
}

// BroadcastHandler builds the bus handler for the broadcast channel.
// The payload is plain text.
func (r *Relay) BroadcastHandler() bus.Handler {
	return func(payload string) {
		r.messenger.BroadcastLocal(payload)
	}
}
