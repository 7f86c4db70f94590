// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

//go:build integration

package testinfra

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// RedisAddrEnvVar points tests at an existing Redis instead of a container.
const RedisAddrEnvVar = "ADFETCH_TEST_REDIS_ADDR"

// dockerAvailable asks the Docker daemon for its info within five seconds.
func dockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// StartRedis returns the address of a Redis server for t. It uses
// ADFETCH_TEST_REDIS_ADDR when set, otherwise starts a container that is
// terminated when t ends. The test is skipped when neither is possible.
func StartRedis(t *testing.T, opts ...RedisOption) string {
	t.Helper()

	if addr := os.Getenv(RedisAddrEnvVar); addr != "" {
		return addr
	}
	if !dockerAvailable() {
		t.Skip("Skipping test: Docker not available and " + RedisAddrEnvVar + " unset")
	}

	ctx := context.Background()
	c, err := NewRedisContainer(ctx, opts...)
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() { terminate(t, c.Container) })
	return c.Addr
}

func terminate(t *testing.T, c testcontainers.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Terminate(ctx); err != nil {
		t.Logf("Warning: failed to terminate container: %v", err)
	}
}
