package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/dannycabezas/semantic-firewall/internal/domain/event"
	"github.com/dannycabezas/semantic-firewall/internal/service/eventbus"
)

func TestHandler_FansOutPublishedEvents(t *testing.T) {
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	h := NewHandler(bus, WithPingInterval(time.Hour))
	server := httptest.NewServer(h)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	// Give the server goroutine time to register the subscription before
	// publishing, since Subscribe happens on the accept path.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber registration")
		}
		time.Sleep(time.Millisecond)
	}

	bus.Publish(event.Event{ID: "evt-1", Prompt: "hello"})

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg dashboardMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "event" {
		t.Errorf("expected type=event, got %q", msg.Type)
	}
	if msg.Event.ID != "evt-1" {
		t.Errorf("expected event id evt-1, got %q", msg.Event.ID)
	}
}

func TestHandler_UnsubscribesOnClientDisconnect(t *testing.T) {
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	h := NewHandler(bus, WithPingInterval(time.Hour))
	server := httptest.NewServer(h)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber registration")
		}
		time.Sleep(time.Millisecond)
	}

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline = time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for unsubscribe after client disconnect")
		}
		time.Sleep(time.Millisecond)
	}
}
