// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

//go:build !nats

package events

import "context"

// Forwarder is a stub when NATS dependencies are not compiled in.
// Build with -tags=nats to enable forwarding.
type Forwarder struct{}

// NewForwarder returns ErrNATSUnavailable.
func NewForwarder(NATSConfig) (*Forwarder, error) {
	return nil, ErrNATSUnavailable
}

// URL returns an empty string for the stub.
func (f *Forwarder) URL() string { return "" }

// Handle is a no-op stub.
//
//nolint:gocritic // Listener signature
func (f *Forwarder) Handle(Event) {}

// Serve blocks until ctx is canceled.
func (f *Forwarder) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// String names the service in supervisor logs.
func (f *Forwarder) String() string { return "nats-forwarder" }
