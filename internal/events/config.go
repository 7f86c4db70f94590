// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package events

import (
	"errors"
	"time"
)

// ErrNATSUnavailable is returned by the NATS constructors in builds without the nats tag.
var ErrNATSUnavailable = errors.New("events: NATS support not compiled in, build with -tags=nats")

// NATSConfig configures event forwarding to NATS.
type NATSConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`

	// URL of an external server. Ignored when Embedded is true.
	URL string `koanf:"url" json:"url" validate:"omitempty,url"`

	// Embedded starts an in-process nats-server and forwards to it.
	Embedded bool   `koanf:"embedded" json:"embedded"`
	Host     string `koanf:"host" json:"host"`
	Port     int    `koanf:"port" json:"port" validate:"gte=-1,lte=65535"`

	// Subject prefix; events go to <prefix>.<event type>.
	SubjectPrefix string `koanf:"subject_prefix" json:"subject_prefix" validate:"required_if=Enabled true"`

	// BufferSize bounds the queue between the bus and the publisher.
	// Events beyond it are dropped and counted.
	BufferSize     int           `koanf:"buffer_size" json:"buffer_size" validate:"gte=0"`
	MaxReconnects  int           `koanf:"max_reconnects" json:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait" json:"reconnect_wait"`
	PublishTimeout time.Duration `koanf:"publish_timeout" json:"publish_timeout"`
}

// DefaultNATSConfig returns forwarding disabled with an embedded server preset.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Enabled:        false,
		URL:            "nats://127.0.0.1:4222",
		Embedded:       true,
		Host:           "127.0.0.1",
		Port:           4222,
		SubjectPrefix:  "adfetch.status",
		BufferSize:     256,
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Subject returns the NATS subject for events of type t.
func (c NATSConfig) Subject(t Type) string {
	return c.SubjectPrefix + "." + string(t)
}
