package events

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Kind identifies an event type.
type Kind string

// Event kinds published by the scheduler.
const (
	KindStarted      Kind = "started"
	KindStopped      Kind = "stopped"
	KindPollComplete Kind = "pollComplete"
	KindPollError    Kind = "pollError"
	KindPollSkipped  Kind = "pollSkipped"
	KindDataUpdate   Kind = "dataUpdate"
	KindHealthCheck  Kind = "healthCheck"
)

// ErrClosed is returned by Next once a subscription is closed and drained.
var ErrClosed = errors.New("events: subscription closed")

// Event is a single published occurrence.
type Event struct {
	Kind      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"data,omitempty"`
}

// BusConfig sizes per-subscriber buffers.
type BusConfig struct {
	BufferSize    int // Initial per-subscriber capacity (default: 64)
	MaxBufferSize int // Cap before the oldest events are dropped (default: 4096)
}

// Bus delivers events to registered subscribers. Publish never blocks: each
// subscriber has its own buffer.
type Bus struct {
	cfg    BusConfig
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewBus creates an event bus.
func NewBus(cfg BusConfig, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = 4096
	}
	return &Bus{
		cfg:    cfg,
		logger: logger.With("component", "events"),
		now:    time.Now,
		subs:   make(map[uint64]*Subscription),
	}
}

// Publish stamps and delivers an event to every matching subscriber.
func (b *Bus) Publish(kind Kind, payload any) {
	ev := Event{Kind: kind, Timestamp: b.now(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.wants(kind) {
			s.buf.Send(ev)
		}
	}
}

// Subscribe registers a subscriber for the given kinds; no kinds means all.
// The caller must Close the subscription when done.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	s := &Subscription{
		bus:   b,
		kinds: slices.Clone(kinds),
		buf:   NewGrowableBuffer[Event](b.cfg.BufferSize, b.cfg.MaxBufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		s.buf.Close()
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	b.logger.Debug("subscriber added", "subscriber_id", s.id, "kinds", kinds)
	return s
}

// Subscribers returns the number of registered subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Later subscriptions are born closed.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.buf.Close()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is an observer registration. Events are buffered until read
// with Next.
type Subscription struct {
	id    uint64
	bus   *Bus
	kinds []Kind
	buf   *GrowableBuffer[Event]
	once  sync.Once
}

// Next blocks until an event is available, ctx is done, or the subscription
// is closed and drained.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	ev, ok := s.buf.Receive(ctx)
	if ok {
		return ev, nil
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, ErrClosed
}

// Close unregisters the subscription. Buffered events can still be drained.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s.id)
		s.buf.Close()
	})
}

// Stats returns the subscription's buffer statistics, including drops.
func (s *Subscription) Stats() BufferStats {
	return s.buf.Stats()
}

func (s *Subscription) wants(kind Kind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, kind)
}
