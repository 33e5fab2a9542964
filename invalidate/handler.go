package invalidate

import (
	"log/slog"
	"strings"

	"github.com/sacredlabyrinth/clansync/bus"
	"github.com/sacredlabyrinth/clansync/codec"
	"github.com/sacredlabyrinth/clansync/entity"
	"github.com/sacredlabyrinth/clansync/localcache"
)

// Stores groups the node-local entity caches the propagator evicts
// from.
type Stores struct {
	Clans   *localcache.Store[*entity.Clan]
	Players *localcache.Store[*entity.ClanPlayer]
}

// Observer receives invalidations after the local caches have been
// handled. Hosts hook it to refresh live game objects; a nil observer
// is fine.
type Observer interface {
	Invalidated(n Notice)
}

// NewHandler builds the bus handler for the invalidate channel.
func NewHandler(stores Stores, obs Observer, logger *slog.Logger) bus.Handler {
	log := logger.WithGroup("invalidate")
	return func(payload string) {
		n, ok := Parse(payload)
		if !ok {
			log.Warn("dropping malformed invalidation", "payload", payload)
			return
		}

		switch {
		case n.Op == OpAll:
			stores.Clans.Purge()
			stores.Players.Purge()
		case n.Kind == KindClan:
			stores.Clans.Delete(strings.ToLower(n.ID))
		case n.Kind == KindPlayer:
			stores.Players.Delete(strings.ToLower(n.ID))
		}

		if obs != nil {
			obs.Invalidated(n)
		}
	}
}

// NewUpdateHandler builds the bus handler for the update channel, which
// carries `clan:<json>` / `player:<json>` payloads so receivers can
// refresh their local copies without a store round trip.
func NewUpdateHandler(stores Stores, logger *slog.Logger) bus.Handler {
	log := logger.WithGroup("invalidate")
	clanCodec := codec.JSON[*entity.Clan]{Logger: log}
	playerCodec := codec.JSON[*entity.ClanPlayer]{Logger: log}

	return func(payload string) {
		kind, body, found := strings.Cut(payload, ":")
		if !found {
			log.Warn("dropping malformed update", "payload", payload)
			return
		}
		switch Kind(kind) {
		case KindClan:
			if c, ok := clanCodec.Decode(body); ok && c.Tag != "" {
				stores.Clans.Put(strings.ToLower(c.Tag), c)
			}
		case KindPlayer:
			if p, ok := playerCodec.Decode(body); ok && p.UUID != "" {
				stores.Players.Put(strings.ToLower(p.UUID), p)
			}
		default:
			log.Warn("dropping update of unknown kind", "kind", kind)
		}
	}
}
