// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adfetch/internal/models"
	"github.com/tomtom215/adfetch/internal/registry"
	"github.com/tomtom215/adfetch/internal/store"
)

var t0 = time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) All() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func testPlatforms() []models.PlatformConfig {
	return []models.PlatformConfig{
		{
			Key:                "google_ads",
			Name:               "Google Ads",
			Interval:           time.Hour,
			MaxRequestsPerDay:  100,
			MaxRequestsPerHour: 50,
			BackoffMultiplier:  2,
			Priority:           models.PriorityHigh,
			Endpoints:          []string{"campaigns", "metrics"},
		},
		{
			Key:                "meta_ads",
			Name:               "Meta Ads",
			Interval:           time.Hour,
			MaxRequestsPerDay:  100,
			MaxRequestsPerHour: 50,
			BackoffMultiplier:  1.5,
			Priority:           models.PriorityMedium,
			Endpoints:          []string{"insights"},
		},
	}
}

// okDelegate returns one JSON record per endpoint.
func okDelegate() DelegateFunc {
	return func(_ context.Context, platform string, endpoints []string) (*models.PlatformData, error) {
		data := &models.PlatformData{Platform: platform, Records: map[string]json.RawMessage{}}
		for _, e := range endpoints {
			data.Records[e] = json.RawMessage(`{"rows":1}`)
		}
		return data, nil
	}
}

func errDelegate(err error) DelegateFunc {
	return func(context.Context, string, []string) (*models.PlatformData, error) {
		return nil, err
	}
}

// scriptedDelegate returns the next error from script, or success when the entry is nil.
type scriptedDelegate struct {
	mu     sync.Mutex
	script []error
	calls  int
}

func (s *scriptedDelegate) Fetch(ctx context.Context, platform string, endpoints []string) (*models.PlatformData, error) {
	s.mu.Lock()
	var err error
	if s.calls < len(s.script) {
		err = s.script[s.calls]
	}
	s.calls++
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return okDelegate()(ctx, platform, endpoints)
}

func (s *scriptedDelegate) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type harness struct {
	m     *Manager
	clk   *fakeClock
	kv    *store.Memory
	sleep *sleepRecorder
}

type harnessOpt func(*harnessConfig)

type harnessConfig struct {
	platforms []models.PlatformConfig
	cfg       Config
	settings  models.UserSettings
	rand      func(time.Duration) time.Duration
	kv        store.KV
	timeout   time.Duration
}

func withPlatforms(p []models.PlatformConfig) harnessOpt {
	return func(c *harnessConfig) { c.platforms = p }
}

func withConfig(fn func(*Config)) harnessOpt {
	return func(c *harnessConfig) { fn(&c.cfg) }
}

func withUserSettings(fn func(*models.UserSettings)) harnessOpt {
	return func(c *harnessConfig) { fn(&c.settings) }
}

func withKV(kv store.KV) harnessOpt {
	return func(c *harnessConfig) { c.kv = kv }
}

func newHarness(t *testing.T, d Delegate, opts ...harnessOpt) *harness {
	t.Helper()

	settings := models.DefaultUserSettings()
	// Loops of auto fetches should hit the platform caps, not the user's.
	settings.Auto.MaxPerDay = 1000
	hc := &harnessConfig{
		platforms: testPlatforms(),
		cfg:       DefaultConfig(),
		settings:  settings,
		rand:      func(n time.Duration) time.Duration { return n - 1 },
		timeout:   30 * time.Second,
	}
	for _, o := range opts {
		o(hc)
	}

	reg, err := registry.New(hc.platforms, hc.timeout)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	h := &harness{clk: &fakeClock{now: t0}, sleep: &sleepRecorder{}}
	kv := hc.kv
	if kv == nil {
		h.kv = store.NewMemory()
		kv = h.kv
	}

	m, err := New(hc.cfg, reg, d,
		WithClock(h.clk.Now),
		WithRand(hc.rand),
		WithSleeper(h.sleep.Sleep),
		WithStore(kv),
		WithSettings(hc.settings),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.m = m
	return h
}

func (h *harness) fetch(t *testing.T, platform string, ft models.FetchType) models.FetchResult {
	t.Helper()
	res, err := h.m.FetchPlatformData(context.Background(), platform, ft, FetchOptions{})
	if err != nil {
		t.Fatalf("FetchPlatformData: %v", err)
	}
	return res
}

func (h *harness) health(t *testing.T, platform string) models.PlatformHealth {
	t.Helper()
	ph, ok := h.m.GetStatus().Platforms[platform]
	if !ok {
		t.Fatalf("no health for %s", platform)
	}
	return ph
}

// pastBackoff moves the clock just past the platform's backoff window.
func (h *harness) pastBackoff(t *testing.T, platform string) {
	t.Helper()
	next := h.health(t, platform).NextAllowedFetch
	if next.IsZero() {
		return
	}
	h.clk.Set(next.Add(time.Second))
}

type failingKV struct{}

func (failingKV) Load(context.Context, string) ([]byte, error) { return nil, errors.New("disk on fire") }
func (failingKV) Save(context.Context, string, []byte) error   { return errors.New("disk on fire") }
func (failingKV) Close() error                                 { return nil }
