// Package bansync mirrors ban and unban decisions across nodes, so a
// player banned anywhere is banned everywhere.
package bansync

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sacredlabyrinth/clansync/bus"
)

// BanStore applies remote ban decisions locally, without re-publishing.
type BanStore interface {
	AddBan(id uuid.UUID)
	RemoveBan(id uuid.UUID)
}

type event struct {
	Type string `json:"type"` // "ban" or "unban"
	UUID string `json:"uuid"`
}

// Syncer publishes local ban decisions and applies remote ones.
type Syncer struct {
	pub    *bus.Publisher
	store  BanStore
	logger *slog.Logger
}

func New(pub *bus.Publisher, store BanStore, logger *slog.Logger) *Syncer {
	return &Syncer{
		pub:    pub,
		store:  store,
		logger: logger.WithGroup("bansync"),
	}
}

// PublishBan announces a ban decided on this node.
func (s *Syncer) PublishBan(ctx context.Context, id uuid.UUID) {
	s.publish(ctx, event{Type: "ban", UUID: id.String()})
}

// PublishUnban announces an unban decided on this node.
func (s *Syncer) PublishUnban(ctx context.Context, id uuid.UUID) {
	s.publish(ctx, event{Type: "unban", UUID: id.String()})
}

func (s *Syncer) publish(ctx context.Context, e event) {
	raw, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("encode failed", "error", err)
		return
	}
	s.pub.Publish(ctx, bus.ChannelBan, string(raw))
}

// Handler builds the bus handler for the ban channel.
func (s *Syncer) Handler() bus.Handler {
	return func(payload string) {
		var e event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			s.logger.Warn("dropping malformed ban event", "error", err)
			return
		}
		id, err := uuid.Parse(e.UUID)
		if err != nil {
			s.logger.Warn("dropping ban event with bad uuid", "uuid", e.UUID)
			return
		}

		switch e.Type {
		case "ban":
			s.store.AddBan(id)
		case "unban":
			s.store.RemoveBan(id)
		default:
			s.logger.Warn("dropping ban event of unknown type", "type", e.Type)
		}
	}
}
