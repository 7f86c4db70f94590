// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tomtom215/adfetch/internal/api"
	"github.com/tomtom215/adfetch/internal/config"
	"github.com/tomtom215/adfetch/internal/delegate"
	"github.com/tomtom215/adfetch/internal/events"
	"github.com/tomtom215/adfetch/internal/fetch"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/registry"
	"github.com/tomtom215/adfetch/internal/store"
	"github.com/tomtom215/adfetch/internal/supervisor"
	"github.com/tomtom215/adfetch/internal/supervisor/services"
	ws "github.com/tomtom215/adfetch/internal/websocket"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Msg("Failed to read .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggingConfig())

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
	logging.Info().Msg("Server stopped")
}

// app holds the wired components. The tree owns every goroutine.
type app struct {
	kv      store.KV
	manager *fetch.Manager
	hub     *ws.Hub
	server  *http.Server
	tree    *supervisor.SupervisorTree
}

func run(cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Int("platforms", len(cfg.Platforms)).
		Str("store", cfg.Store.Backend).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting adfetch")

	err = a.tree.Serve(ctx)
	if report, rerr := a.tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, s := range report {
			logging.Warn().Str("service", s.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	return nil
}

func newApp(cfg *config.Config) (*app, error) {
	kv, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	a, err := wire(cfg, kv)
	if err != nil {
		if cerr := kv.Close(); cerr != nil {
			logging.Error().Err(cerr).Msg("Error closing store")
		}
		return nil, err
	}
	return a, nil
}

func wire(cfg *config.Config, kv store.KV) (*app, error) {
	reg, err := registry.New(cfg.Platforms, cfg.Fetch.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("build platform registry: %w", err)
	}

	manager, err := fetch.New(cfg.Fetch, reg, delegate.NewHTTP(cfg.Delegate, reg, nil),
		fetch.WithStore(kv),
		fetch.WithSettings(cfg.Settings),
	)
	if err != nil {
		return nil, fmt.Errorf("create fetch manager: %w", err)
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor)
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}

	hub := ws.NewHub(cfg.WebSocket, func() any { return manager.GetStatus() })
	manager.OnStatusChange(hub.HandleEvent)

	tree.AddCoreService(services.NewFetchManagerService(manager))
	tree.AddMessagingService(hub)
	addForwarder(tree, manager.Bus(), cfg.NATS)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(api.NewHandler(manager, hub), cfg.API),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout))

	return &app{kv: kv, manager: manager, hub: hub, server: server, tree: tree}, nil
}

// addForwarder subscribes a NATS forwarder to the bus when enabled. A binary
// built without the nats tag logs and continues.
func addForwarder(tree *supervisor.SupervisorTree, bus *events.Bus, cfg events.NATSConfig) {
	if !cfg.Enabled {
		return
	}
	fw, err := events.NewForwarder(cfg)
	if errors.Is(err, events.ErrNATSUnavailable) {
		logging.Warn().Msg("NATS_ENABLED=true but NATS support not compiled (build with -tags nats)")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("NATS forwarder disabled")
		return
	}
	bus.Subscribe(fw.Handle)
	tree.AddMessagingService(fw)
	logging.Info().Str("url", fw.URL()).Str("subject_prefix", cfg.SubjectPrefix).Msg("Forwarding status events to NATS")
}
