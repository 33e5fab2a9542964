package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/redis/go-redis/v9"
)

// Publisher sends enveloped messages on behalf of one node. Publish
// failures are logged and counted, never surfaced to game logic: a
// flaky bus degrades coordination, it does not break the caller.
type Publisher struct {
	rdb    redis.UniversalClient
	origin string
	ready  func() bool
	logger *slog.Logger
}

func NewPublisher(rdb redis.UniversalClient, origin string, ready func() bool, logger *slog.Logger) *Publisher {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Publisher{
		rdb:    rdb,
		origin: origin,
		ready:  ready,
		logger: logger.WithGroup("bus"),
	}
}

// Origin returns the node id stamped on outgoing envelopes.
func (p *Publisher) Origin() string { return p.origin }

// Publish wraps payload in this node's envelope and sends it. It
// reports whether the message was handed to the store.
func (p *Publisher) Publish(ctx context.Context, channel, payload string) bool {
	if !p.ready() {
		metrics.GetOrCreateCounter(fmt.Sprintf("clansync_bus_dropped_total{channel=%q}", channel)).Inc()
		return false
	}

	if err := p.rdb.Publish(ctx, channel, Wrap(p.origin, payload)).Err(); err != nil {
		p.logger.Warn("publish failed", "channel", channel, "error", err)
		metrics.GetOrCreateCounter(fmt.Sprintf("clansync_bus_publish_errors_total{channel=%q}", channel)).Inc()
		return false
	}

	metrics.GetOrCreateCounter(fmt.Sprintf("clansync_bus_published_total{channel=%q}", channel)).Inc()
	return true
}

// PublishRaw sends payload with an empty origin, so every node,
// including this one, handles it.
func (p *Publisher) PublishRaw(ctx context.Context, channel, payload string) bool {
	if !p.ready() {
		return false
	}
	if err := p.rdb.Publish(ctx, channel, Wrap("", payload)).Err(); err != nil {
		p.logger.Warn("publish failed", "channel", channel, "error", err)
		return false
	}
	return true
}
