// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package supervisor runs adfetch's long-lived services under a suture v4 tree.

	RootSupervisor ("adfetch")
	├── CoreSupervisor ("core-layer")
	│   └── FetchManagerService
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket.Hub
	│   └── events.Forwarder (build tag: nats)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crash in one layer restarts only that layer's services. A panicking
websocket hub never interrupts the scheduler, and a failed NATS connection
never takes the HTTP API down.

Supervisor events (restarts, backoff, stop timeouts) are logged through
sutureslog into the slog bridge of the logging package, so they share the
zerolog JSON output with everything else.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor)
	if err != nil {
	    return err
	}
	tree.AddCoreService(services.NewFetchManagerService(manager))
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, addr, timeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}
*/
package supervisor
