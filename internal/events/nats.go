// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

//go:build nats

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/metrics"
)

// EmbeddedServer is an in-process NATS server for single-node deployments.
type EmbeddedServer struct {
	server *server.Server
}

// StartEmbeddedServer starts nats-server on cfg.Host:cfg.Port and waits until
// it accepts connections. Port -1 picks a random free port.
func StartEmbeddedServer(cfg NATSConfig) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "adfetch-events",
		Host:       cfg.Host,
		Port:       cfg.Port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	logging.Info().Str("url", ns.ClientURL()).Msg("embedded NATS server started")
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}

// Forwarder publishes bus events to NATS through a watermill publisher.
//
// Handle is registered as a bus listener and only enqueues; Serve drains the
// queue, so a slow or disconnected NATS server never stalls a fetch.
type Forwarder struct {
	cfg       NATSConfig
	publisher message.Publisher
	queue     chan Event
	embedded  *EmbeddedServer
}

// NewForwarder connects to NATS, starting the embedded server first when configured.
func NewForwarder(cfg NATSConfig) (*Forwarder, error) {
	var embedded *EmbeddedServer
	url := cfg.URL
	if cfg.Embedded {
		srv, err := StartEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		embedded = srv
		url = srv.ClientURL()
	}

	logger := watermill.NewSlogLogger(logging.NewSlogLogger())
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultNATSConfig().BufferSize
	}
	return &Forwarder{
		cfg:       cfg,
		publisher: pub,
		queue:     make(chan Event, size),
		embedded:  embedded,
	}, nil
}

// URL returns the server the forwarder publishes to.
func (f *Forwarder) URL() string {
	if f.embedded != nil {
		return f.embedded.ClientURL()
	}
	return f.cfg.URL
}

// Handle enqueues ev for publishing. It never blocks; a full queue drops the event.
//
//nolint:gocritic // Listener signature
func (f *Forwarder) Handle(ev Event) {
	select {
	case f.queue <- ev:
	default:
		metrics.NATSPublishTotal.WithLabelValues("dropped").Inc()
		logging.Warn().Str("event_type", string(ev.Type)).Msg("NATS forward queue full, dropping event")
	}
}

// Serve publishes queued events until ctx is canceled, then closes the
// publisher and the embedded server. It implements suture.Service.
func (f *Forwarder) Serve(ctx context.Context) error {
	defer f.close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.queue:
			metrics.RecordNATSPublish(f.publish(ev))
		}
	}
}

//nolint:gocritic // events are values
func (f *Forwarder) publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("event_type", string(ev.Type))
	if ev.Platform != "" {
		msg.Metadata.Set("platform", ev.Platform)
	}
	if err := f.publisher.Publish(f.cfg.Subject(ev.Type), msg); err != nil {
		logging.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("NATS publish failed")
		return err
	}
	return nil
}

func (f *Forwarder) close() {
	if err := f.publisher.Close(); err != nil {
		logging.Warn().Err(err).Msg("close NATS publisher")
	}
	if f.embedded != nil {
		f.embedded.Shutdown()
	}
}

// String names the service in supervisor logs.
func (f *Forwarder) String() string {
	return "nats-forwarder"
}
