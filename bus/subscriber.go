package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
)

// Handler consumes the payload of one unwrapped message. Handlers run
// on the Scheduler, so they may touch application state freely, and
// they must not panic the process over bad input.
type Handler func(payload string)

// Subscriber owns the long-lived subscription to every bus channel. It
// unwraps envelopes, drops the ones this node published itself, and
// hands the rest to the handler registered for the channel via the
// Scheduler.
type Subscriber struct {
	rdb      redis.UniversalClient
	origin   string
	sched    Scheduler
	logger   *slog.Logger
	handlers *xsync.MapOf[string, Handler]

	reconnectDelay time.Duration
	maxAttempts    int

	active atomic.Bool
	done   chan struct{}
}

func NewSubscriber(rdb redis.UniversalClient, origin string, sched Scheduler, reconnectDelay time.Duration, maxAttempts int, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		rdb:            rdb,
		origin:         origin,
		sched:          sched,
		logger:         logger.WithGroup("bus"),
		handlers:       xsync.NewMapOf[string, Handler](),
		reconnectDelay: reconnectDelay,
		maxAttempts:    maxAttempts,
		done:           make(chan struct{}),
	}
}

// Register installs the handler for one channel, replacing any previous
// one. Channels without a handler are received and ignored.
func (s *Subscriber) Register(channel string, h Handler) {
	s.handlers.Store(channel, h)
}

// Active reports whether the subscription loop is attached (or still
// trying to attach) to the store.
func (s *Subscriber) Active() bool { return s.active.Load() }

// Done is closed when the subscription loop has exited for good.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Start launches the subscription loop. It returns once the first
// subscribe attempt has been confirmed or failed; recovery from later
// drops happens in the background.
func (s *Subscriber) Start(ctx context.Context) {
	s.active.Store(true)
	go s.run(ctx)
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)
	defer s.active.Store(false)

	attempts := 0
	for {
		subscribed, err := s.consume(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		if subscribed {
			// The budget counts consecutive failures only; a session
			// that got as far as a confirmed subscribe clears it.
			attempts = 0
		}

		attempts++
		metrics.GetOrCreateCounter("clansync_bus_reconnects_total").Inc()
		if s.maxAttempts > 0 && attempts >= s.maxAttempts {
			s.logger.Error("subscription lost, retry budget exhausted",
				"attempts", attempts)
			return
		}
		s.logger.Warn("subscription dropped, reconnecting",
			"attempt", attempts, "delay", s.reconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

// consume holds one subscription until it breaks. A nil error means a
// clean shutdown; any error asks run for a reconnect. The subscribed
// flag reports whether the subscribe itself was confirmed before the
// session ended.
func (s *Subscriber) consume(ctx context.Context) (subscribed bool, err error) {
	pubsub := s.rdb.Subscribe(ctx, Channels()...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, err
	}
	s.logger.Info("subscribed", "channels", len(Channels()))

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}
		s.dispatch(msg.Channel, msg.Payload)
	}
}

func (s *Subscriber) dispatch(channel, envelope string) {
	origin, payload, ok := Unwrap(envelope)
	if !ok {
		s.logger.Warn("dropping message without envelope", "channel", channel)
		return
	}
	if origin == s.origin {
		return
	}

	handler, ok := s.handlers.Load(channel)
	if !ok {
		return
	}

	metrics.GetOrCreateCounter(fmt.Sprintf("clansync_bus_received_total{channel=%q}", channel)).Inc()
	s.sched.Run(func() { handler(payload) })
}
