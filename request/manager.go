package request

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sacredlabyrinth/clansync/bus"
	"github.com/sacredlabyrinth/clansync/presence"
)

// Outcomes is the host's side-effect hook. Resolve runs exactly once
// per request, on the node where the deciding vote was cast, after
// which the request is gone everywhere.
type Outcomes interface {
	Resolve(req *Request, accepted bool, denies []string)
}

// Notifier delivers leader- and acceptor-facing text on this node.
type Notifier interface {
	// Deliver shows message to one player, reporting whether that
	// player is on this node.
	Deliver(player, message string) bool

	// NotifyLeaders shows message to the local leaders of clanTag,
	// skipping any named players.
	NotifyLeaders(clanTag, message string, skip ...string)
}

// Manager owns this node's view of the live requests. All of its
// methods must be called from the host's scheduler context; the bus
// handler and the ask sweeper are marshaled there too, so the local map
// never sees concurrent access.
type Manager struct {
	local    map[string]*Request
	storage  *Storage
	pub      *bus.Publisher
	tracker  *presence.Tracker
	outcomes Outcomes
	notifier Notifier

	askInterval time.Duration
	maxAskCount int
	voteTTL     time.Duration

	logger *slog.Logger
}

// Tuning bounds the voting process: how often pending acceptors are
// re-asked, how many asks a request survives, and how long a request
// may keep collecting votes once the first one lands.
type Tuning struct {
	AskInterval time.Duration
	MaxAskCount int
	VoteTTL     time.Duration
}

func NewManager(storage *Storage, pub *bus.Publisher, tracker *presence.Tracker,
	outcomes Outcomes, notifier Notifier, tuning Tuning, logger *slog.Logger) *Manager {
	return &Manager{
		local:       make(map[string]*Request),
		storage:     storage,
		pub:         pub,
		tracker:     tracker,
		outcomes:    outcomes,
		notifier:    notifier,
		askInterval: tuning.AskInterval,
		maxAskCount: tuning.MaxAskCount,
		voteTTL:     tuning.VoteTTL,
		logger:      logger.WithGroup("requests"),
	}
}

// Len returns the number of requests this node currently tracks.
func (m *Manager) Len() int { return len(m.local) }

// Has reports whether key is live on this node.
func (m *Manager) Has(key string) bool {
	_, ok := m.local[Normalize(key)]
	return ok
}

// Get returns this node's copy of key.
func (m *Manager) Get(key string) (*Request, bool) {
	req, ok := m.local[Normalize(key)]
	return req, ok
}

// Create registers a new request under key and announces it. A second
// request under a live key, on any node, is rejected as a no-op. The
// requester's own vote is recorded as accept when they are on the
// acceptor list.
func (m *Manager) Create(ctx context.Context, key string, req *Request) bool {
	key = Normalize(key)
	if !req.Type.Valid() || len(req.Acceptors) == 0 {
		m.logger.Warn("rejecting malformed request", "key", key, "type", req.Type)
		return false
	}
	if _, ok := m.local[key]; ok {
		return false
	}
	if m.storage.Has(ctx, key) {
		m.logger.Debug("request key already live on another node", "key", key)
		return false
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.SetVote(req.Requester.Name, VoteAccept)

	m.local[key] = req
	m.storage.Store(ctx, key, req)
	m.publish(ctx, Message{
		Action:       ActionNew,
		Key:          key,
		Type:         req.Type,
		ClanTag:      req.ClanTag,
		TargetClan:   targetClan(req),
		TargetPlayer: targetPlayer(req),
		Message:      m.describe(req),
	})

	m.notifyNew(req)
	m.ask(ctx, key, req)
	m.logger.Info("request created", "key", key, "type", req.Type, "clan", req.ClanTag)

	// creator's auto-vote can already be the deciding one, e.g. a
	// single-leader clan disband
	m.resolve(ctx, key, req)
	return true
}

// CastVote applies a local participant's vote, persists it, announces
// it, and runs resolution if it was the deciding one. Only terminal
// votes are accepted; a pending vote cannot be cast back.
func (m *Manager) CastVote(ctx context.Context, key, voter string, v Vote) bool {
	if v != VoteAccept && v != VoteDeny {
		return false
	}
	key = Normalize(key)
	req, ok := m.local[key]
	if !ok {
		return false
	}

	// read-modify-write so votes landed on other nodes since our last
	// look are not lost
	if fresh, live := m.storage.Get(ctx, key); live {
		m.local[key] = fresh
		req = fresh
	}
	if !req.SetVote(voter, v) {
		return false
	}
	m.storage.StoreTTL(ctx, key, req, m.voteTTL)
	m.publish(ctx, Message{Action: ActionVote, Key: key, Voter: voter, Vote: v})

	m.resolve(ctx, key, req)
	return true
}

// Accept records voter's accept on the first pending request naming
// them as an acceptor.
func (m *Manager) Accept(ctx context.Context, voter string) bool {
	return m.voteFirstPending(ctx, voter, VoteAccept)
}

// Deny records voter's deny on the first pending request naming them
// as an acceptor.
func (m *Manager) Deny(ctx context.Context, voter string) bool {
	return m.voteFirstPending(ctx, voter, VoteDeny)
}

func (m *Manager) voteFirstPending(ctx context.Context, voter string, v Vote) bool {
	for key, req := range m.local {
		if req.HasAcceptor(voter) && req.VoteOf(voter) == VoteNone {
			return m.CastVote(ctx, key, voter, v)
		}
	}
	return false
}

// ApplyRemoteVote refreshes this node's copy after another node
// announced a vote. The authoritative store copy wins over the delta;
// resolution never runs here; that is the deciding node's job.
func (m *Manager) ApplyRemoteVote(ctx context.Context, key, voter string, v Vote) {
	key = Normalize(key)
	if fresh, live := m.storage.Get(ctx, key); live {
		m.local[key] = fresh
		return
	}
	if req, ok := m.local[key]; ok {
		req.SetVote(voter, v)
	}
}

// AdoptRemote records a request another node created, fetching the full
// copy from the shared store.
func (m *Manager) AdoptRemote(ctx context.Context, key string) {
	key = Normalize(key)
	if req, ok := m.storage.Get(ctx, key); ok {
		m.local[key] = req
	}
}

// RemoveLocal drops this node's copy only. Unknown keys are a no-op,
// so duplicate removal notifications are harmless.
func (m *Manager) RemoveLocal(key string) {
	delete(m.local, Normalize(key))
}

// Withdraw cancels a request explicitly, removing it everywhere.
func (m *Manager) Withdraw(ctx context.Context, key string) bool {
	key = Normalize(key)
	if _, ok := m.local[key]; !ok {
		return false
	}
	m.removeEverywhere(ctx, key, ReasonWithdrawn)
	return true
}

// EndPending cancels every request waiting on player, once they are
// offline network-wide. A player merely switching nodes keeps their
// requests alive.
func (m *Manager) EndPending(ctx context.Context, player string) {
	if m.tracker != nil && m.tracker.Online(player) {
		return
	}
	for key, req := range m.local {
		if !req.HasAcceptor(player) || req.VoteOf(player) != VoteNone {
			continue
		}
		if m.notifier != nil {
			m.notifier.NotifyLeaders(req.ClanTag,
				fmt.Sprintf("Request %q canceled: %s signed off", key, player))
		}
		m.removeEverywhere(ctx, key, ReasonSignedOff)
	}
}

// Sweep re-asks every pending acceptor and expires requests over the
// ask budget. The sweeper ticker calls it on the scheduler.
func (m *Manager) Sweep(ctx context.Context) {
	for key, req := range m.local {
		if req.AskCount >= m.maxAskCount {
			if m.notifier != nil {
				m.notifier.NotifyLeaders(req.ClanTag,
					fmt.Sprintf("Request %q expired without enough votes", key))
			}
			m.removeEverywhere(ctx, key, ReasonExpired)
			continue
		}
		m.ask(ctx, key, req)
		req.AskCount++
		m.storage.Store(ctx, key, req)
	}
}

// StartSweeper runs Sweep on the configured interval until ctx ends.
// Each tick is marshaled onto sched, like any other mutation.
func (m *Manager) StartSweeper(ctx context.Context, sched bus.Scheduler) {
	go func() {
		ticker := time.NewTicker(m.askInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sched.Run(func() { m.Sweep(ctx) })
			}
		}
	}()
}

func (m *Manager) resolve(ctx context.Context, key string, req *Request) {
	if !req.Concluded() {
		return
	}
	denies := req.Denies()
	accepted := len(denies) == 0
	m.logger.Info("request resolved",
		"key", key, "type", req.Type, "accepted", accepted)

	if m.outcomes != nil {
		m.outcomes.Resolve(req, accepted, denies)
	}
	m.removeEverywhere(ctx, key, processedReason(req.Type))
}

func (m *Manager) removeEverywhere(ctx context.Context, key, reason string) {
	delete(m.local, key)
	m.storage.Remove(ctx, key)
	m.publish(ctx, Message{Action: ActionRemove, Key: key, Reason: reason})
}

// ask prompts every pending acceptor once: directly when they are on
// this node, via a notify message when they are online elsewhere.
func (m *Manager) ask(ctx context.Context, key string, req *Request) {
	prompt := m.describe(req)
	for i := range req.Acceptors {
		a := &req.Acceptors[i]
		if a.Vote != VoteNone {
			continue
		}
		if m.notifier != nil && m.notifier.Deliver(a.Name, prompt) {
			continue
		}
		if m.tracker != nil && m.tracker.Online(a.Name) {
			m.publish(ctx, Message{
				Action:       ActionNotify,
				Key:          key,
				TargetPlayer: a.Name,
				Message:      prompt,
			})
		}
	}
}

// notifyNew tells this node's relevant participants about a request it
// just created, mirroring what remote nodes do on the new notification.
func (m *Manager) notifyNew(req *Request) {
	if m.notifier == nil {
		return
	}
	switch {
	case req.Type == TypeInvite:
		// the invited player gets asked directly by ask()
	case req.Type.InterClan():
		m.notifier.NotifyLeaders(targetClan(req), m.describe(req))
	default:
		m.notifier.NotifyLeaders(req.ClanTag, m.describe(req), targetPlayer(req))
	}
}

func (m *Manager) describe(req *Request) string {
	if req.Message != "" {
		return req.Message
	}
	return fmt.Sprintf("%s requested %s for clan %s",
		req.Requester.Name, strings.ToLower(string(req.Type)), req.ClanTag)
}

func (m *Manager) publish(ctx context.Context, msg Message) {
	raw, err := EncodeMessage(msg)
	if err != nil {
		m.logger.Warn("encode failed", "action", msg.Action, "error", err)
		return
	}
	m.pub.Publish(ctx, bus.ChannelRequest, raw)
}

func processedReason(t Type) string {
	return "processed_" + strings.ToLower(string(t))
}

func targetClan(req *Request) string {
	if req.Type.InterClan() {
		return req.Target
	}
	return ""
}

func targetPlayer(req *Request) string {
	if req.Type.InterClan() {
		return ""
	}
	return req.Target
}
