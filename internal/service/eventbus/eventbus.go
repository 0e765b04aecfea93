// Package eventbus implements the event bus & WebSocket fan-out (C8): a
// single-producer queue drained by one dispatcher loop that broadcasts to
// every live subscriber. Grounded directly on the teacher's AuditService
// (internal/service/audit_service.go): the same buffered-channel,
// non-blocking-then-timeout backpressure, drop counter, and channel-depth
// warning, generalized from "batch to store" to "fan out to subscribers".
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/event"
)

// Subscriber receives fanned-out events, typically a dashboard WebSocket
// connection. Send returning an error causes the bus to unsubscribe it.
type Subscriber interface {
	Send(e event.Event) error
}

// Bus is a single-producer/multi-consumer event queue with one dispatcher
// loop fanning events out to every live subscriber.
type Bus struct {
	queue  chan event.Event
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	queueSize   int
	sendTimeout time.Duration
	dropCount   atomic.Int64

	warningThreshold int
	lastWarning      atomic.Int64

	mu          sync.Mutex
	subscribers map[Subscriber]struct{}
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithQueueSize overrides the default queue capacity (1000).
func WithQueueSize(size int) Option {
	return func(b *Bus) {
		b.queue = make(chan event.Event, size)
		b.queueSize = size
	}
}

// WithSendTimeout overrides the default backpressure timeout (100ms).
// 0 drops immediately on a full queue.
func WithSendTimeout(d time.Duration) Option {
	return func(b *Bus) { b.sendTimeout = d }
}

// WithWarningThreshold sets the queue-depth percentage (0-100) that
// triggers a rate-limited warning log. Default 80.
func WithWarningThreshold(percent int) Option {
	return func(b *Bus) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		b.warningThreshold = percent
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// New builds a Bus. Call Start to begin dispatching.
func New(opts ...Option) *Bus {
	const defaultQueueSize = 1000
	b := &Bus{
		queue:            make(chan event.Event, defaultQueueSize),
		done:             make(chan struct{}),
		logger:           slog.Default(),
		queueSize:        defaultQueueSize,
		sendTimeout:      100 * time.Millisecond,
		warningThreshold: 80,
		subscribers:      make(map[Subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start begins the background dispatcher loop.
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.dispatch(ctx)
}

// Stop closes the queue and waits for the dispatcher to drain and exit.
func (b *Bus) Stop() {
	close(b.queue)
	b.wg.Wait()
}

// Subscribe registers a subscriber to receive all future published events.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[s] = struct{}{}
}

// Unsubscribe removes a subscriber. Idempotent.
func (b *Bus) Unsubscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, s)
}

// SubscriberCount reports the number of live subscribers, for diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Publish enqueues e for dispatch. Applies backpressure: a fast
// non-blocking send first, then a bounded block up to sendTimeout before
// dropping, since the hot request path must never stall on a slow
// dashboard consumer.
func (b *Bus) Publish(e event.Event) {
	if b.warningThreshold > 0 {
		depth := len(b.queue)
		threshold := b.queueSize * b.warningThreshold / 100
		if depth >= threshold {
			b.warnQueueDepth(depth)
		}
	}

	select {
	case b.queue <- e:
		return
	default:
	}

	if b.sendTimeout <= 0 {
		b.recordDrop(e)
		return
	}

	select {
	case b.queue <- e:
	case <-time.After(b.sendTimeout):
		b.recordDrop(e)
	}
}

// DroppedEvents returns the total number of events dropped under
// backpressure, for metrics/alerting.
func (b *Bus) DroppedEvents() int64 {
	return b.dropCount.Load()
}

// QueueDepth returns current queue usage, for monitoring.
func (b *Bus) QueueDepth() int {
	return len(b.queue)
}

func (b *Bus) recordDrop(e event.Event) {
	drops := b.dropCount.Add(1)
	b.logger.Warn("event dropped from bus", "event_id", e.ID, "total_drops", drops)
}

func (b *Bus) warnQueueDepth(depth int) {
	now := time.Now().UnixNano()
	last := b.lastWarning.Load()
	if now-last < int64(time.Second) {
		return
	}
	if b.lastWarning.CompareAndSwap(last, now) {
		b.logger.Warn("event bus queue approaching capacity",
			"depth", depth, "capacity", b.queueSize, "percent", depth*100/b.queueSize)
	}
}

func (b *Bus) dispatch(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case e, ok := <-b.queue:
			if !ok {
				return
			}
			b.broadcast(e)
		case <-ctx.Done():
			for e := range b.queue {
				b.broadcast(e)
			}
			return
		case <-b.done:
			return
		}
	}
}

// broadcast fans e out to every live subscriber, dropping any subscriber
// whose Send fails.
func (b *Bus) broadcast(e event.Event) {
	b.mu.Lock()
	targets := make([]Subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	var failed []Subscriber
	for _, s := range targets {
		if err := s.Send(e); err != nil {
			failed = append(failed, s)
		}
	}
	if len(failed) == 0 {
		return
	}
	b.mu.Lock()
	for _, s := range failed {
		delete(b.subscribers, s)
	}
	b.mu.Unlock()
}
