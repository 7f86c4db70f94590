// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package models defines the data structures shared by every adfetch package.

Key types:

  - PlatformConfig: immutable per-platform quotas, interval, jitter and endpoints
  - PlatformHealth: live per-platform status, counters and backoff state
  - FetchAttempt: one entry of the bounded attempt log
  - UserSettings / SettingsPatch: runtime-tunable manual and emergency limits
  - Decision: result of a rate-limit gate check
  - FetchResult, Status, Stats: values returned by the public fetch API

All types carry json tags (persistence snapshot, HTTP API, websocket) and the
configuration types also carry koanf and validate tags.

Thread Safety: values in this package are plain data. Owners (health.Tracker,
history.Ring, fetch.Manager) copy them before handing them to readers.
*/
package models
