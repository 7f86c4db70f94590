// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package services adapts adfetch components to suture.Service.

Components whose lifecycle is not already Serve(ctx) get a wrapper here:

  - FetchManagerService turns Start/Stop into Serve. Stop persists the final
    snapshot, so a supervised shutdown never loses counters.
  - HTTPServerService turns ListenAndServe/Shutdown into Serve with a bounded
    graceful shutdown.

The websocket hub and the NATS forwarder implement Serve themselves and are
added to the tree directly.
*/
package services
