// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package websocket pushes fetch status changes to dashboards.

The Hub subscribes to the fetch manager's status bus and forwards each event
(fetch_completed, health_changed, settings_updated, fetching_toggled) to the
connected clients. A client that cannot keep up is dropped rather than
slowing the publisher down.

	┌──────────┐   bus listener   ┌─────┐
	│ Manager  │ ───────────────▶ │ Hub │ ──▶ Client 1..N
	└──────────┘                  └─────┘

Clients may narrow what they receive:

	{"type": "subscribe", "platforms": ["google_ads", "meta_ads"]}

is answered with a "subscribed" message listing the effective filter. Events
about other platforms are then skipped; events with no platform (settings
and enable/disable changes) still reach everyone. An empty list clears the
filter. "ping" is answered with "pong".

On connect the client first receives a "status" message with the current
polling snapshot when the hub has a status source.

Thread Safety:

HandleEvent and the Broadcast helpers never block. RunWithContext must be
running for messages to be delivered; it returns when its context is canceled
and closes every client.
*/
package websocket
