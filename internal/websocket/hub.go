// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package websocket

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/adfetch/internal/events"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types sent by the hub besides the bus event types.
const (
	MessageTypeStatus     = "status"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeSubscribe  = "subscribe"
	MessageTypeSubscribed = "subscribed"
)

// Message is the envelope written to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// outbound is a queued broadcast. An empty platform reaches every client.
type outbound struct {
	msg      Message
	platform string
}

// StatusFunc returns the current polling snapshot sent to new clients.
type StatusFunc func() any

// Config controls the upgrade handshake.
type Config struct {
	// AllowedOrigins lists accepted Origin headers. "*" accepts any origin.
	AllowedOrigins []string `koanf:"allowed_origins" json:"allowed_origins"`
	// BufferSize is the hub broadcast queue length.
	BufferSize int `koanf:"buffer_size" json:"buffer_size" validate:"gte=0"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	cfg        Config
	status     StatusFunc
	clients    map[*Client]bool
	broadcast  chan outbound
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. status may be nil.
func NewHub(cfg Config, status StatusFunc) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &Hub{
		cfg:        cfg,
		status:     status,
		broadcast:  make(chan outbound, cfg.BufferSize),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// String implements fmt.Stringer for supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

// Serve runs the hub under a supervisor.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// RunWithContext processes registrations and broadcasts until ctx is canceled,
// then closes every client and returns ctx.Err().
//
// Shutdown is checked first, then client lifecycle events, then broadcasts,
// so client state is consistent before a message is fanned out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case out := <-h.broadcast:
			h.broadcastToClients(out)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client connected")

	if h.status != nil {
		select {
		case client.send <- Message{Type: MessageTypeStatus, Data: h.status()}:
		default:
		}
	}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client disconnected")
}

// logGracefulShutdown closes all clients and logs without an error field:
// cancellation is the expected way to stop.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.clientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClients returns clients in id order. Caller holds mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients delivers in client id order to the clients subscribed
// to the message's platform and drops clients whose queue is full.
func (h *Hub) broadcastToClients(out outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for _, client := range h.sortedClients() {
		if !client.Wants(out.platform) {
			continue
		}
		select {
		case client.send <- out.msg:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().Uint64("client_id", client.id).Msg("dropping slow websocket client")
	}
	if len(toRemove) > 0 {
		metrics.WebSocketConnections.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebSocketConnections.Set(0)
}

// HandleEvent is a bus listener that forwards ev to the clients following
// ev.Platform.
//
//nolint:gocritic // events.Listener signature
func (h *Hub) HandleEvent(ev events.Event) {
	h.enqueue(outbound{msg: Message{Type: string(ev.Type), Data: ev}, platform: ev.Platform})
}

// enqueue hands out to the run loop without blocking.
func (h *Hub) enqueue(out outbound) {
	select {
	case h.broadcast <- out:
	default:
		metrics.WebSocketDropped.Inc()
		logging.Warn().Str("message_type", out.msg.Type).Str("platform", out.platform).Msg("broadcast channel full, dropping message")
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers a client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h, conn)
	h.Register <- client
	client.Start()
}

// checkOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests from an allowed origin.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
