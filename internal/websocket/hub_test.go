// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package websocket

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/adfetch/internal/events"
	"github.com/tomtom215/adfetch/internal/models"
)

// startHub runs hub until the test ends.
func startHub(t *testing.T, hub *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func testClient(hub *Hub, buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, buffer)}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("client channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.clientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.clientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewHubDefaults(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, nil)
	if cap(hub.broadcast) != 256 {
		t.Errorf("broadcast buffer = %d, want 256", cap(hub.broadcast))
	}
	if hub.clientCount() != 0 {
		t.Error("new hub has clients")
	}
	if hub.String() != "websocket-hub" {
		t.Errorf("String() = %q", hub.String())
	}
}

func TestHandleEventBroadcasts(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, nil)
	startHub(t, hub)

	a, b := testClient(hub, 4), testClient(hub, 4)
	hub.Register <- a
	hub.Register <- b
	waitForClients(t, hub, 2)

	bus := events.NewBus()
	bus.Subscribe(hub.HandleEvent)
	ev := events.New(events.TypeHealthChanged, time.Now())
	ev.Platform = "google_ads"
	ev.From, ev.To = models.HealthRateLimited, models.HealthHealthy
	bus.Publish(ev)

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		if msg.Type != string(events.TypeHealthChanged) {
			t.Errorf("type = %q", msg.Type)
		}
		got, ok := msg.Data.(events.Event)
		if !ok || got.ID != ev.ID || got.Platform != "google_ads" {
			t.Errorf("data = %#v", msg.Data)
		}
	}
}

func TestSubscriptionFiltersPlatformEvents(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, nil)
	startHub(t, hub)

	google, all := testClient(hub, 4), testClient(hub, 4)
	google.Subscribe([]string{"google_ads"})
	hub.Register <- google
	hub.Register <- all
	waitForClients(t, hub, 2)

	meta := events.New(events.TypeFetchCompleted, time.Now())
	meta.Platform = "meta_ads"
	hub.HandleEvent(meta)
	toggled := events.New(events.TypeFetchingToggled, time.Now())
	hub.HandleEvent(toggled)

	if msg := receive(t, all); msg.Data.(events.Event).ID != meta.ID {
		t.Errorf("unfiltered client first message = %+v", msg)
	}
	if msg := receive(t, all); msg.Data.(events.Event).ID != toggled.ID {
		t.Errorf("unfiltered client second message = %+v", msg)
	}
	// The platform-less event is the only one the subscribed client gets.
	if msg := receive(t, google); msg.Data.(events.Event).ID != toggled.ID {
		t.Errorf("subscribed client got %+v", msg)
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	c := testClient(NewHub(Config{}, nil), 1)
	if !c.Wants("tiktok_ads") {
		t.Error("a new client wants every platform")
	}
	got := c.Subscribe([]string{"meta_ads", "google_ads", "meta_ads"})
	if len(got) != 2 || got[0] != "google_ads" || got[1] != "meta_ads" {
		t.Errorf("Subscribe() = %v", got)
	}
	if c.Wants("tiktok_ads") || !c.Wants("meta_ads") || !c.Wants("") {
		t.Error("filter not applied")
	}
	if got := c.Subscribe(nil); len(got) != 0 || !c.Wants("tiktok_ads") {
		t.Errorf("clearing the filter: %v", got)
	}
}

func TestStatusSentOnRegister(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, func() any { return map[string]bool{"is_enabled": true} })
	startHub(t, hub)

	c := testClient(hub, 4)
	hub.Register <- c
	msg := receive(t, c)
	if msg.Type != MessageTypeStatus {
		t.Errorf("first message type = %q, want status", msg.Type)
	}
}

func TestSlowClientDropped(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, nil)
	startHub(t, hub)

	slow, fast := testClient(hub, 1), testClient(hub, 8)
	hub.Register <- slow
	hub.Register <- fast
	waitForClients(t, hub, 2)

	for i := 0; i < 3; i++ {
		hub.enqueue(outbound{msg: Message{Type: "tick", Data: i}})
	}
	waitForClients(t, hub, 1)

	for i := 0; i < 3; i++ {
		if msg := receive(t, fast); msg.Data != i {
			t.Errorf("fast client message %d = %v", i, msg.Data)
		}
	}
	<-slow.send // the one buffered message
	if _, ok := <-slow.send; ok {
		t.Error("slow client channel not closed")
	}
}

func TestUnregister(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, nil)
	startHub(t, hub)

	c := testClient(hub, 1)
	hub.Register <- c
	waitForClients(t, hub, 1)
	hub.Unregister <- c
	waitForClients(t, hub, 0)
	if _, ok := <-c.send; ok {
		t.Error("send channel still open")
	}

	// A second unregister of the same client is harmless.
	hub.Unregister <- c
}

func TestRunWithContextClosesClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Serve(ctx) }()

	c := testClient(hub, 1)
	hub.Register <- c
	waitForClients(t, hub, 1)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.clientCount() != 0 {
		t.Error("clients left after shutdown")
	}
	if _, ok := <-c.send; ok {
		t.Error("client not closed on shutdown")
	}
}

func TestShutdownReason(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextCanceled {
		t.Errorf("canceled: %s", got)
	}

	ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextDeadline {
		t.Errorf("deadline: %s", got)
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"listed", []string{"https://dash.example.com"}, "https://dash.example.com", true},
		{"wildcard", []string{"*"}, "https://anything.example", true},
		{"not listed", []string{"https://dash.example.com"}, "https://evil.example", false},
		{"nothing allowed", nil, "https://dash.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hub := NewHub(Config{AllowedOrigins: tt.allowed}, nil)
			r := httptest.NewRequest("GET", "/api/v1/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := hub.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarshalMessage(t *testing.T) {
	t.Parallel()

	b, err := MarshalMessage(Message{Type: MessageTypePong})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"pong","data":null}` {
		t.Errorf("json = %s", b)
	}
}
