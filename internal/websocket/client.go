// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package websocket

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/adfetch/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
	maxSubscribed  = 32
)

var clientIDCounter atomic.Uint64

// inbound is what a dashboard may send: a keepalive ping, or a subscribe
// naming the platforms whose events it wants. An empty list clears the filter.
type inbound struct {
	Type      string   `json:"type"`
	Platforms []string `json:"platforms"`
}

// Client is one dashboard connection. Events for platforms outside its
// subscription are skipped; events without a platform always go through.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	mu        sync.RWMutex
	platforms map[string]struct{}
}

// NewClient creates a client with a unique id and no platform filter.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
}

// ID returns the client's identifier. Broadcasts go out in ID order.
func (c *Client) ID() uint64 {
	return c.id
}

// Subscribe limits delivery to the given platforms and returns the
// effective list, sorted. No platforms means everything.
func (c *Client) Subscribe(platforms []string) []string {
	if len(platforms) > maxSubscribed {
		platforms = platforms[:maxSubscribed]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(platforms) == 0 {
		c.platforms = nil
		return []string{}
	}
	c.platforms = make(map[string]struct{}, len(platforms))
	for _, p := range platforms {
		c.platforms[p] = struct{}{}
	}
	out := make([]string, 0, len(c.platforms))
	for p := range c.platforms {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Wants reports whether an event about platform should reach this client.
func (c *Client) Wants(platform string) bool {
	if platform == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.platforms == nil {
		return true
	}
	_, ok := c.platforms[platform]
	return ok
}

// reply queues a direct answer, dropping it if the client is backed up.
func (c *Client) reply(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) handle(in inbound) {
	switch in.Type {
	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong})
	case MessageTypeSubscribe:
		c.reply(Message{Type: MessageTypeSubscribed, Data: c.Subscribe(in.Platforms)})
	default:
		logging.Debug().Uint64("client_id", c.id).Str("type", in.Type).Msg("ignoring websocket message")
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		c.handle(in)
	}
}

// writeLoop exits once the hub closes send or a write fails.
func (c *Client) writeLoop() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		_ = c.conn.Close()
	}()

	for {
		var err error
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			err = c.write(func() error { return c.conn.WriteJSON(msg) })
		case <-keepalive.C:
			err = c.write(func() error { return c.conn.WriteMessage(websocket.PingMessage, nil) })
		}
		if err != nil {
			logging.Debug().Err(err).Uint64("client_id", c.id).Msg("websocket write failed")
			return
		}
	}
}

func (c *Client) write(fn func() error) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return fn()
}

// Start runs the read and write loops in their own goroutines.
func (c *Client) Start() {
	go c.writeLoop()
	go c.readLoop()
}
