// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package middleware provides HTTP middleware shared by the API router.

  - RequestID: accepts or generates X-Request-ID and seeds the logging context
    with request and correlation ids
  - PrometheusMetrics: records request count and latency labeled by the chi
    route pattern, so path parameters do not explode label cardinality

Both have the func(http.Handler) http.Handler shape used by chi's r.Use.
*/
package middleware
