package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/event"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	received []event.Event
	failAll  bool
}

func (r *recordingSubscriber) Send(e event.Event) error {
	if r.failAll {
		return errors.New("send failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, e)
	return nil
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBus_PublishFansOutToSubscribers(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	sub1 := &recordingSubscriber{}
	sub2 := &recordingSubscriber{}
	b.Subscribe(sub1)
	b.Subscribe(sub2)

	b.Publish(event.Event{ID: "evt-1"})

	waitUntil(t, time.Second, func() bool { return sub1.count() == 1 && sub2.count() == 1 })
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	sub := &recordingSubscriber{}
	b.Subscribe(sub)
	b.Unsubscribe(sub)

	b.Publish(event.Event{ID: "evt-1"})
	time.Sleep(20 * time.Millisecond)

	if sub.count() != 0 {
		t.Errorf("expected no events delivered after unsubscribe, got %d", sub.count())
	}
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	sub := &recordingSubscriber{}
	b.Subscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBus_FailingSubscriberIsRemoved(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	bad := &recordingSubscriber{failAll: true}
	good := &recordingSubscriber{}
	b.Subscribe(bad)
	b.Subscribe(good)

	b.Publish(event.Event{ID: "evt-1"})
	waitUntil(t, time.Second, func() bool { return good.count() == 1 })

	waitUntil(t, time.Second, func() bool { return b.SubscriberCount() == 1 })
}

func TestBus_DropsUnderBackpressureWithoutBlockingPublisher(t *testing.T) {
	b := New(WithQueueSize(1), WithSendTimeout(0))
	// No Start(): nothing drains the queue, so the first Publish fills
	// the buffer and every subsequent Publish must drop rather than block.
	b.Publish(event.Event{ID: "evt-1"})
	b.Publish(event.Event{ID: "evt-2"})
	b.Publish(event.Event{ID: "evt-3"})

	if got := b.DroppedEvents(); got != 2 {
		t.Errorf("expected 2 dropped events, got %d", got)
	}
}

func TestBus_StopDrainsPendingEventsBeforeExit(t *testing.T) {
	b := New(WithQueueSize(10))
	ctx := context.Background()
	b.Start(ctx)

	sub := &recordingSubscriber{}
	b.Subscribe(sub)

	b.Publish(event.Event{ID: "evt-1"})
	b.Publish(event.Event{ID: "evt-2"})
	b.Stop()

	if sub.count() != 2 {
		t.Errorf("expected both events drained before Stop returned, got %d", sub.count())
	}
}

func TestBus_QueueDepthReflectsPendingEvents(t *testing.T) {
	b := New(WithQueueSize(10))
	b.Publish(event.Event{ID: "evt-1"})
	if depth := b.QueueDepth(); depth != 1 {
		t.Errorf("expected queue depth 1, got %d", depth)
	}
}
