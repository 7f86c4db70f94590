// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package testinfra starts throwaway containers for integration tests.
//
// Everything here is behind the integration build tag and needs a Docker daemon:
//
//	go test -tags=integration ./internal/store/...
//
// StartRedis skips the test when Docker is missing, so the suite still passes
// on machines without it. Set ADFETCH_TEST_REDIS_ADDR to reuse a running server.
//
//	func TestRedisStore(t *testing.T) {
//	    addr := testinfra.StartRedis(t)
//	    // connect to addr
//	}
package testinfra
