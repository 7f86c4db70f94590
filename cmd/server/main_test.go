// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adfetch/internal/config"
	"github.com/tomtom215/adfetch/internal/events"
	"github.com/tomtom215/adfetch/internal/models"
	"github.com/tomtom215/adfetch/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Store.Backend = store.BackendMemory
	cfg.Fetch.EnabledOnStart = false
	cfg.Fetch.RestoreEnabled = false
	cfg.API.RateLimitDisabled = true
	return cfg
}

func TestWireServesStatus(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.kv.Close() })

	if a.server.Addr != cfg.Server.Addr() || a.server.WriteTimeout != cfg.Server.WriteTimeout {
		t.Errorf("server = %+v", a.server)
	}

	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var env struct {
		Data models.Status `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Data.IsEnabled || len(env.Data.Platforms) != len(cfg.Platforms) {
		t.Errorf("status = %+v", env.Data)
	}
}

func TestTreeRunsAndPersists(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	a, err := wire(cfg, store.NewMemory())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.tree.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !a.manager.Running() {
		if time.Now().After(deadline) {
			t.Fatal("fetch manager did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-errCh

	if _, err := a.kv.Load(context.Background(), cfg.Fetch.StateKey); err != nil {
		t.Errorf("no snapshot after shutdown: %v", err)
	}
}

func TestAddForwarderDisabled(t *testing.T) {
	cfg := testConfig(t)
	a, err := wire(cfg, store.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	before := a.manager.Bus().Len()
	addForwarder(a.tree, a.manager.Bus(), events.NATSConfig{Enabled: false})
	if a.manager.Bus().Len() != before {
		t.Error("disabled forwarder subscribed to the bus")
	}
}
