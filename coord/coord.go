// Package coord owns the lifecycle of the coordination layer: the
// store client, the bus subscription, caches, locks, presence, chat
// relay, ban sync and the request manager, wired together and torn down
// as one unit. A host embeds exactly one Coordinator.
package coord

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/sacredlabyrinth/clansync/bansync"
	"github.com/sacredlabyrinth/clansync/bus"
	"github.com/sacredlabyrinth/clansync/cache"
	"github.com/sacredlabyrinth/clansync/codec"
	"github.com/sacredlabyrinth/clansync/config"
	"github.com/sacredlabyrinth/clansync/entity"
	"github.com/sacredlabyrinth/clansync/invalidate"
	"github.com/sacredlabyrinth/clansync/localcache"
	"github.com/sacredlabyrinth/clansync/presence"
	"github.com/sacredlabyrinth/clansync/relay"
	"github.com/sacredlabyrinth/clansync/request"
)

var (
	// ErrDisabled means the configuration turned the layer off; the
	// host keeps running in local-only mode.
	ErrDisabled = errors.New("coordination layer disabled by configuration")

	// ErrConnect means the shared store could not be reached at
	// initialize time. Local-only mode is the expected fallback.
	ErrConnect = errors.New("could not reach the shared store")

	ErrAlreadyInitialized = errors.New("coordinator already initialized")
	ErrNotInitialized     = errors.New("coordinator not initialized")
)

// Hooks are the host-supplied callbacks. Scheduler is the only one the
// library insists on conceptually; when nil, a SerialScheduler is
// created and owned by the coordinator. Every other hook may be nil,
// disabling the feature that needs it.
type Hooks struct {
	Scheduler bus.Scheduler
	Resolver  entity.Resolver
	Outcomes  request.Outcomes
	Notifier  request.Notifier
	Messenger relay.Messenger
	Bans      bansync.BanStore
	Roster    presence.Roster
	Observer  invalidate.Observer
}

// Coordinator is the connection and lifecycle manager.
type Coordinator struct {
	cfg    *config.Config
	hooks  Hooks
	logger *slog.Logger

	rdb   *redis.Client
	sub   *bus.Subscriber
	pub   *bus.Publisher
	sched bus.Scheduler
	// set when the coordinator created the scheduler itself
	ownedSched *bus.SerialScheduler

	clans   *cache.Cache[*entity.Clan]
	players *cache.Cache[*entity.ClanPlayer]

	localClans   *localcache.Store[*entity.Clan]
	localPlayers *localcache.Store[*entity.ClanPlayer]

	storage  *request.Storage
	requests *request.Manager
	tracker  *presence.Tracker
	relay    *relay.Relay
	bans     *bansync.Syncer

	initialized atomic.Bool
	cancel      context.CancelFunc
}

func New(cfg *config.Config, hooks Hooks, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		hooks:  hooks,
		logger: logger.WithGroup("coord"),
	}
}

// Initialize connects to the shared store, builds every component and
// starts the subscription loop. On ErrConnect (or ErrDisabled) the host
// should continue in local-only mode; every operation on this
// coordinator then degrades to a no-op.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if c.initialized.Load() {
		return ErrAlreadyInitialized
	}
	if !c.cfg.Enabled {
		return ErrDisabled
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	opts := &redis.Options{
		Addr:         c.cfg.Addr(),
		Username:     c.cfg.Username,
		Password:     c.cfg.Password,
		PoolSize:     c.cfg.Pool.MaxTotal,
		MaxIdleConns: c.cfg.Pool.MaxIdle,
		MinIdleConns: c.cfg.Pool.MinIdle,
		PoolTimeout:  c.cfg.Pool.Timeout,
		DialTimeout:  c.cfg.Pool.Timeout,
		ReadTimeout:  c.cfg.Pool.Timeout,
		WriteTimeout: c.cfg.Pool.Timeout,
	}
	if c.cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return pkgerrors.Wrapf(ErrConnect, "%s: %v", c.cfg.Addr(), err)
	}
	c.rdb = rdb

	c.sched = c.hooks.Scheduler
	if c.sched == nil {
		c.ownedSched = bus.NewSerialScheduler()
		c.sched = c.ownedSched
	}

	ready := c.Ready
	c.pub = bus.NewPublisher(rdb, c.cfg.NodeID, ready, c.logger)
	c.sub = bus.NewSubscriber(rdb, c.cfg.NodeID, c.sched,
		c.cfg.Reconnect.Delay, c.cfg.Reconnect.MaxAttempts, c.logger)

	c.clans = cache.New[*entity.Clan](rdb, cache.ClanPrefix, c.cfg.Caches.ClanTTL,
		codec.JSON[*entity.Clan]{Logger: c.logger}, ready, c.logger)
	c.players = cache.New[*entity.ClanPlayer](rdb, cache.PlayerPrefix, c.cfg.Caches.PlayerTTL,
		codec.JSON[*entity.ClanPlayer]{Logger: c.logger}, ready, c.logger)

	c.localClans = localcache.New[*entity.Clan](c.cfg.Caches.ClanTTL)
	c.localPlayers = localcache.New[*entity.ClanPlayer](c.cfg.Caches.PlayerTTL)

	c.tracker = presence.NewTracker(c.cfg.NodeID, c.hooks.Roster, c.pub, c.logger)
	c.storage = request.NewStorage(rdb, c.cfg.Requests.TTL, ready, c.logger)
	c.requests = request.NewManager(c.storage, c.pub, c.tracker,
		c.hooks.Outcomes, c.hooks.Notifier, request.Tuning{
			AskInterval: c.cfg.Requests.AskInterval,
			MaxAskCount: c.cfg.Requests.MaxAskCount,
			VoteTTL:     c.cfg.Requests.VoteTTL,
		}, c.logger)
	c.bans = bansync.New(c.pub, c.hooks.Bans, c.logger)

	stores := invalidate.Stores{Clans: c.localClans, Players: c.localPlayers}
	c.sub.Register(bus.ChannelInvalidate, invalidate.NewHandler(stores, c.hooks.Observer, c.logger))
	c.sub.Register(bus.ChannelUpdate, invalidate.NewUpdateHandler(stores, c.logger))
	c.sub.Register(bus.ChannelRequest, request.NewHandler(c.requests, c.logger))
	c.sub.Register(bus.ChannelOnline, c.tracker.Handler())
	if c.hooks.Messenger != nil {
		c.relay = relay.New(c.pub, c.hooks.Messenger, c.logger)
		c.sub.Register(bus.ChannelChat, c.relay.ChatHandler())
		c.sub.Register(bus.ChannelBroadcast, c.relay.BroadcastHandler())
	}
	if c.hooks.Bans != nil {
		c.sub.Register(bus.ChannelBan, c.bans.Handler())
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.initialized.Store(true)

	c.sub.Start(runCtx)
	c.requests.StartSweeper(runCtx, c.sched)
	c.tracker.RequestSync(ctx)
	c.tracker.PublishSync(ctx)

	c.logger.Info("coordination layer up",
		"node", c.cfg.NodeID, "store", c.cfg.Addr())
	return nil
}

// Shutdown stops the subscription loop, flushes the in-process caches
// and closes the store client. A never-initialized coordinator shuts
// down as a no-op.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if !c.initialized.Swap(false) {
		return nil
	}
	c.cancel()

	select {
	case <-c.sub.Done():
	case <-ctx.Done():
		c.logger.Warn("subscriber did not stop in time")
	case <-time.After(5 * time.Second):
		c.logger.Warn("subscriber did not stop in time")
	}

	if c.ownedSched != nil {
		c.ownedSched.Stop()
	}
	c.localClans.Stop()
	c.localPlayers.Stop()

	err := c.rdb.Close()
	c.logger.Info("coordination layer down", "node", c.cfg.NodeID)
	return err
}

// Ready reports whether the layer is initialized. Components consult
// it before every store operation, so a shut-down (or never-up)
// coordinator degrades everything to misses and no-ops.
func (c *Coordinator) Ready() bool { return c.initialized.Load() }

// NodeID returns this process's identity on the bus.
func (c *Coordinator) NodeID() string { return c.cfg.NodeID }

func (c *Coordinator) Requests() *request.Manager                { return c.requests }
func (c *Coordinator) Presence() *presence.Tracker               { return c.tracker }
func (c *Coordinator) Relay() *relay.Relay                       { return c.relay }
func (c *Coordinator) Bans() *bansync.Syncer                     { return c.bans }
func (c *Coordinator) Clans() *cache.Cache[*entity.Clan]         { return c.clans }
func (c *Coordinator) Players() *cache.Cache[*entity.ClanPlayer] { return c.players }
