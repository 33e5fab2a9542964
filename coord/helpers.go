package coord

import (
	"context"
	"strings"

	"github.com/sacredlabyrinth/clansync/bus"
	"github.com/sacredlabyrinth/clansync/codec"
	"github.com/sacredlabyrinth/clansync/entity"
	"github.com/sacredlabyrinth/clansync/invalidate"
	"github.com/sacredlabyrinth/clansync/lock"
)

// NewLock prepares a lock on an arbitrary resource with the default
// hold timeout.
func (c *Coordinator) NewLock(resource string) *lock.Lock {
	return lock.New(c.rdb, resource, c.cfg.Locks.Default, c.logger)
}

// BankLock guards a clan's balance mutations.
func (c *Coordinator) BankLock(clanTag string) *lock.Lock {
	return lock.New(c.rdb, "bank:"+strings.ToLower(clanTag), c.cfg.Locks.Bank, c.logger)
}

// DisbandLock guards a clan's disband sequence, which touches many keys
// and therefore gets the long timeout.
func (c *Coordinator) DisbandLock(clanTag string) *lock.Lock {
	return lock.New(c.rdb, "disband:"+strings.ToLower(clanTag), c.cfg.Locks.Disband, c.logger)
}

// InvalidateClan tells other nodes to drop their copies of the clan.
// This node's local copy is dropped immediately.
func (c *Coordinator) InvalidateClan(ctx context.Context, tag string) {
	c.dropLocalClan(tag)
	c.publishInvalidation(ctx, invalidate.Notice{Kind: invalidate.KindClan, Op: invalidate.OpInvalidate, ID: tag})
}

// ClanDeleted announces a clan that no longer exists, removing it from
// the shared cache as well.
func (c *Coordinator) ClanDeleted(ctx context.Context, tag string) {
	c.dropLocalClan(tag)
	if c.clans != nil {
		c.clans.Remove(ctx, tag)
	}
	c.publishInvalidation(ctx, invalidate.Notice{Kind: invalidate.KindClan, Op: invalidate.OpDelete, ID: tag})
}

// ClanCreated announces a freshly created clan.
func (c *Coordinator) ClanCreated(ctx context.Context, tag string) {
	c.publishInvalidation(ctx, invalidate.Notice{Kind: invalidate.KindClan, Op: invalidate.OpNew, ID: tag})
}

// InvalidatePlayer tells other nodes to drop their copies of the
// player.
func (c *Coordinator) InvalidatePlayer(ctx context.Context, id string) {
	c.dropLocalPlayer(id)
	c.publishInvalidation(ctx, invalidate.Notice{Kind: invalidate.KindPlayer, Op: invalidate.OpInvalidate, ID: id})
}

// PlayerDeleted announces a player record that no longer exists.
func (c *Coordinator) PlayerDeleted(ctx context.Context, id string) {
	c.dropLocalPlayer(id)
	if c.players != nil {
		c.players.Remove(ctx, id)
	}
	c.publishInvalidation(ctx, invalidate.Notice{Kind: invalidate.KindPlayer, Op: invalidate.OpDelete, ID: id})
}

// InvalidateAll flushes every node's local caches, this one included.
func (c *Coordinator) InvalidateAll(ctx context.Context) {
	if c.localClans != nil {
		c.localClans.Purge()
	}
	if c.localPlayers != nil {
		c.localPlayers.Purge()
	}
	c.publishInvalidation(ctx, invalidate.Notice{Op: invalidate.OpAll})
}

func (c *Coordinator) publishInvalidation(ctx context.Context, n invalidate.Notice) {
	if !c.Ready() {
		return
	}
	c.pub.Publish(ctx, bus.ChannelInvalidate, invalidate.Format(n))
}

func (c *Coordinator) dropLocalClan(tag string) {
	if c.localClans != nil {
		c.localClans.Delete(strings.ToLower(tag))
	}
}

func (c *Coordinator) dropLocalPlayer(id string) {
	if c.localPlayers != nil {
		c.localPlayers.Delete(strings.ToLower(id))
	}
}

// PushClanUpdate writes the clan through to the shared cache and pushes
// the serialized copy to every other node's local cache.
func (c *Coordinator) PushClanUpdate(ctx context.Context, clan *entity.Clan) {
	if !c.Ready() || clan == nil {
		return
	}
	c.clans.Put(ctx, clan.Tag, clan)
	c.localClans.Put(strings.ToLower(clan.Tag), clan)

	raw, err := codec.JSON[*entity.Clan]{}.Encode(clan)
	if err != nil {
		return
	}
	c.pub.Publish(ctx, bus.ChannelUpdate, string(invalidate.KindClan)+":"+raw)
}

// PushPlayerUpdate is PushClanUpdate for player records.
func (c *Coordinator) PushPlayerUpdate(ctx context.Context, p *entity.ClanPlayer) {
	if !c.Ready() || p == nil {
		return
	}
	c.players.Put(ctx, p.UUID, p)
	c.localPlayers.Put(strings.ToLower(p.UUID), p)

	raw, err := codec.JSON[*entity.ClanPlayer]{}.Encode(p)
	if err != nil {
		return
	}
	c.pub.Publish(ctx, bus.ChannelUpdate, string(invalidate.KindPlayer)+":"+raw)
}

// ResolveClan reads through local cache, shared cache and finally the
// host's resolver. Hits from deeper layers populate the shallower ones.
func (c *Coordinator) ResolveClan(ctx context.Context, tag string) (*entity.Clan, bool) {
	if !c.Ready() {
		return nil, false
	}
	key := strings.ToLower(tag)
	if clan, ok := c.localClans.Get(key); ok {
		return clan, true
	}
	if clan, ok := c.clans.Get(ctx, key); ok {
		c.localClans.Put(key, clan)
		return clan, true
	}
	if c.hooks.Resolver != nil {
		if clan, ok := c.hooks.Resolver.ClanByTag(tag); ok {
			c.clans.Put(ctx, key, clan)
			c.localClans.Put(key, clan)
			return clan, true
		}
	}
	return nil, false
}

// ResolvePlayer is ResolveClan for player records, keyed by uuid.
func (c *Coordinator) ResolvePlayer(ctx context.Context, id string) (*entity.ClanPlayer, bool) {
	if !c.Ready() {
		return nil, false
	}
	key := strings.ToLower(id)
	if p, ok := c.localPlayers.Get(key); ok {
		return p, true
	}
	if p, ok := c.players.Get(ctx, key); ok {
		c.localPlayers.Put(key, p)
		return p, true
	}
	if c.hooks.Resolver != nil {
		if p, ok := c.hooks.Resolver.PlayerByUUID(id); ok {
			c.players.Put(ctx, key, p)
			c.localPlayers.Put(key, p)
			return p, true
		}
	}
	return nil, false
}

// PlayerJoined announces a player joining this node.
func (c *Coordinator) PlayerJoined(ctx context.Context, name string) {
	if !c.Ready() {
		return
	}
	c.tracker.PublishJoin(ctx, name)
}

// PlayerQuit announces a player leaving this node and, when they are
// gone from the whole network, cancels requests waiting on their vote.
// Callers invoke it from the scheduler context.
func (c *Coordinator) PlayerQuit(ctx context.Context, name string) {
	if !c.Ready() {
		return
	}
	c.tracker.PublishQuit(ctx, name)
	c.requests.EndPending(ctx, name)
}
