// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/adfetch/internal/fetch"
	"github.com/tomtom215/adfetch/internal/models"
	"github.com/tomtom215/adfetch/internal/registry"
	"github.com/tomtom215/adfetch/internal/store"
)

type fakeManager struct {
	startErr error
	stopErr  error
	starts   atomic.Int32
	stops    atomic.Int32
}

func (f *fakeManager) Start(context.Context) error {
	f.starts.Add(1)
	return f.startErr
}

func (f *fakeManager) Stop() error {
	f.stops.Add(1)
	return f.stopErr
}

var _ suture.Service = (*FetchManagerService)(nil)

func TestFetchManagerServiceLifecycle(t *testing.T) {
	t.Parallel()

	mgr := &fakeManager{}
	svc := NewFetchManagerService(mgr)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v", err)
	}
	if mgr.starts.Load() != 1 || mgr.stops.Load() != 1 {
		t.Errorf("starts = %d, stops = %d", mgr.starts.Load(), mgr.stops.Load())
	}
	if svc.String() != "fetch-manager" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestFetchManagerServiceErrors(t *testing.T) {
	t.Parallel()

	startErr := errors.New("scheduler already running")
	mgr := &fakeManager{startErr: startErr}
	if err := NewFetchManagerService(mgr).Serve(context.Background()); !errors.Is(err, startErr) {
		t.Errorf("start failure: Serve() = %v", err)
	}
	if mgr.stops.Load() != 0 {
		t.Error("Stop called after failed Start")
	}

	stopErr := errors.New("scheduler not running")
	mgr = &fakeManager{stopErr: stopErr}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewFetchManagerService(mgr).Serve(ctx); !errors.Is(err, stopErr) {
		t.Errorf("stop failure: Serve() = %v", err)
	}
}

func TestFetchManagerServicePersistsOnShutdown(t *testing.T) {
	t.Parallel()

	reg, err := registry.New(models.DefaultPlatforms(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	kv := store.NewMemory()
	cfg := fetch.DefaultConfig()
	cfg.EnabledOnStart = false
	cfg.RestoreEnabled = false
	delegate := fetch.DelegateFunc(func(_ context.Context, p string, _ []string) (*models.PlatformData, error) {
		return &models.PlatformData{Platform: p}, nil
	})
	m, err := fetch.New(cfg, reg, delegate, fetch.WithStore(kv))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- NewFetchManagerService(m).Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !m.Running() {
		if time.Now().After(deadline) {
			t.Fatal("manager did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve() = %v", err)
	}
	if m.Running() {
		t.Error("manager still running")
	}
	if _, err := kv.Load(context.Background(), cfg.StateKey); err != nil {
		t.Errorf("no snapshot after shutdown: %v", err)
	}
}
