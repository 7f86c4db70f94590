// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package api exposes the fetch manager over HTTP.

Every response uses the same envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "data": null, "error": {"code": "FETCH_DENIED", "message": "..."}, "meta": {...}}

Fetch triggers map outcomes onto status codes:

  - 200 for a successful fetch
  - 404 when the platform is not configured
  - 429 for any other gate denial, with Retry-After when a resume time is known
  - 502 when the platform API call failed

Only manual and emergency fetches can be triggered over HTTP; automatic
fetches belong to the scheduler.

Settings patches accept durations as Go duration strings ("90m") or as
integer nanoseconds.

GET and PATCH /api/v1/logging/level read and change the process log level
(trace, debug, info, warn or error) without a restart.
*/
package api
