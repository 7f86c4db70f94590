// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Command server runs the adfetch service: the fetch scheduler, its HTTP API
and the websocket status stream, under one suture supervisor tree.

	RootSupervisor ("adfetch")
	├── core-layer:      fetch manager (scheduler, persistence)
	├── messaging-layer: websocket hub, NATS forwarder (-tags nats)
	└── api-layer:       HTTP server

# Configuration

A .env file in the working directory is loaded first if present; variables
already set in the environment win. Then config.Load layers defaults, the YAML
file named by ADFETCH_CONFIG and the environment. See package config.

# Build Tags

	go build ./cmd/server              # default
	go build -tags nats ./cmd/server   # status events forwarded to NATS

# Signals

SIGINT and SIGTERM cancel the tree. The HTTP server drains for
HTTP_SHUTDOWN_TIMEOUT, the scheduler stops and writes a final snapshot, and
the store is closed last.
*/
package main
