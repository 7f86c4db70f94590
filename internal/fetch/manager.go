// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package fetch coordinates fetches from ad platforms under rate limits.

Manager is the public surface of the core. It owns the health tracker, the
attempt log, the scheduler and the status-change bus, and it is the only
writer of health records and log entries.

Lifecycle:
  - New(): validate inputs, build the tracker, ring, scheduler and breakers
  - Start(): restore the persisted snapshot, start the scheduler loop and seed
    auto jobs if fetching is enabled
  - Stop(): stop the scheduler, wait for in-flight auto fetches, write a final snapshot

Thread Safety:
  - mu protects the enable flag and user settings
  - one slot per platform serializes fetches for that platform; different
    platforms run concurrently
  - persistMu serializes snapshot writes so a slow store never interleaves
    two documents
*/
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/adfetch/internal/clock"
	"github.com/tomtom215/adfetch/internal/events"
	"github.com/tomtom215/adfetch/internal/gate"
	"github.com/tomtom215/adfetch/internal/health"
	"github.com/tomtom215/adfetch/internal/history"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/models"
	"github.com/tomtom215/adfetch/internal/registry"
	"github.com/tomtom215/adfetch/internal/scheduler"
	"github.com/tomtom215/adfetch/internal/store"
	"github.com/tomtom215/adfetch/internal/validation"
)

// Delegate performs the network fetch for one platform. It should honor ctx
// and may return *Error to classify failures.
type Delegate interface {
	Fetch(ctx context.Context, platform string, endpoints []string) (*models.PlatformData, error)
}

// DelegateFunc adapts a function to Delegate.
type DelegateFunc func(ctx context.Context, platform string, endpoints []string) (*models.PlatformData, error)

// Fetch calls f.
func (f DelegateFunc) Fetch(ctx context.Context, platform string, endpoints []string) (*models.PlatformData, error) {
	return f(ctx, platform, endpoints)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source for gate decisions, attempts and health.
func WithClock(now clock.Func) Option {
	return func(m *Manager) { m.now = clock.OrReal(now) }
}

// WithRand sets the random source for jitter and scheduler initial delays.
func WithRand(r clock.Rand) Option {
	return func(m *Manager) { m.rand = clock.OrRealRand(r) }
}

// WithSleeper sets how jitter delays are waited out.
func WithSleeper(s clock.Sleeper) Option {
	return func(m *Manager) { m.sleep = clock.OrSleep(s) }
}

// WithStore enables persistence to kv.
func WithStore(kv store.KV) Option {
	return func(m *Manager) { m.kv = kv }
}

// WithSettings sets the initial user settings.
func WithSettings(s models.UserSettings) Option {
	return func(m *Manager) { m.settings = s }
}

// WithBus shares an existing bus instead of creating one.
func WithBus(bus *events.Bus) Option {
	return func(m *Manager) {
		if bus != nil {
			m.bus = bus
		}
	}
}

// Manager is the fetch coordinator.
type Manager struct {
	cfg      Config
	registry *registry.Registry
	delegate Delegate
	kv       store.KV
	bus      *events.Bus
	tracker  *health.Tracker
	history  *history.Ring
	sched    *scheduler.Scheduler
	breakers map[string]*breaker
	slots    map[string]chan struct{}

	now   clock.Func
	rand  clock.Rand
	sleep clock.Sleeper

	mu       sync.RWMutex
	settings models.UserSettings
	enabled  bool

	persistMu sync.Mutex
}

// New builds a stopped Manager for the platforms in reg.
func New(cfg Config, reg *registry.Registry, delegate Delegate, opts ...Option) (*Manager, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, registry.ErrNoPlatforms
	}
	if delegate == nil {
		return nil, errors.New("fetch: delegate is required")
	}

	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:      cfg,
		registry: reg,
		delegate: delegate,
		bus:      events.NewBus(),
		history:  history.NewRing(cfg.HistorySize),
		slots:    make(map[string]chan struct{}, reg.Len()),
		now:      clock.Real,
		rand:     clock.RealRand,
		sleep:    clock.Sleep,
		settings: models.DefaultUserSettings(),
		enabled:  cfg.EnabledOnStart,
	}
	for _, o := range opts {
		o(m)
	}

	if verr := validation.ValidateStruct(&m.settings); verr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, verr)
	}

	keys := reg.Keys()
	m.tracker = health.NewTracker(keys, m.now)

	jobs := make([]scheduler.Platform, 0, len(keys))
	for _, k := range keys {
		m.slots[k] = make(chan struct{}, 1)
		pc, _ := reg.Get(k)
		jobs = append(jobs, scheduler.Platform{Key: k, Interval: pc.Interval})
	}

	if cfg.CircuitBreaker.Enabled {
		m.breakers = make(map[string]*breaker, len(keys))
		for _, k := range keys {
			m.breakers[k] = newBreaker(k, cfg.CircuitBreaker)
		}
	}

	m.sched = scheduler.New(jobs,
		scheduler.Config{
			InitialDelayMax:     cfg.InitialDelayMax,
			HealthCheckInterval: cfg.HealthCheckInterval,
		},
		scheduler.Hooks{
			AutoFetch:   m.autoFetch,
			HourlyReset: m.hourlyReset,
			DailyReset:  m.dailyReset,
			HealthCheck: m.healthCheck,
		},
		scheduler.WithClock(m.now),
		scheduler.WithRand(m.rand),
	)
	m.sched.SetMinInterval(m.settings.Auto.Interval)

	logging.Info().
		Int("platforms", len(keys)).
		Dur("fetch_timeout", cfg.FetchTimeout).
		Int("history_size", cfg.HistorySize).
		Bool("persistence", m.kv != nil).
		Bool("circuit_breaker", cfg.CircuitBreaker.Enabled).
		Msg("fetch manager configured")
	return m, nil
}

// Start restores persisted state and starts the scheduler.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Restore(ctx); err != nil {
		logging.Warn().Err(err).Msg("could not restore fetch state, starting fresh")
	}
	if err := m.sched.Start(ctx); err != nil {
		return err
	}
	if m.IsEnabled() {
		m.sched.EnableAuto()
	}
	logging.Info().Bool("enabled", m.IsEnabled()).Msg("fetch manager started")
	return nil
}

// Stop stops the scheduler and writes a final snapshot.
func (m *Manager) Stop() error {
	if err := m.sched.Stop(); err != nil {
		return err
	}
	m.persist(context.Background())
	logging.Info().Msg("fetch manager stopped")
	return nil
}

// Running reports whether the scheduler loop is active.
func (m *Manager) Running() bool {
	return m.sched.Running()
}

// Bus returns the status-change bus.
func (m *Manager) Bus() *events.Bus {
	return m.bus
}

// OnStatusChange registers fn for every status-change event and returns a
// function that removes it.
func (m *Manager) OnStatusChange(fn events.Listener) (unsubscribe func()) {
	return m.bus.Subscribe(fn)
}

// Platforms returns the registered platform configurations in priority order.
func (m *Manager) Platforms() []models.PlatformConfig {
	return m.registry.All()
}

// IsEnabled reports the global enable flag.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Settings returns the current user settings.
func (m *Manager) Settings() models.UserSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// CanFetchData runs the rate-limit gate without side effects.
// The emergency approval requirement is not part of this check.
func (m *Manager) CanFetchData(platform string, t models.FetchType) (models.Decision, error) {
	if !t.Valid() {
		return models.Decision{}, fmt.Errorf("%w: %q", ErrInvalidFetchType, t)
	}
	return m.decide(platform, t), nil
}

func (m *Manager) decide(platform string, t models.FetchType) models.Decision {
	m.mu.RLock()
	enabled, settings := m.enabled, m.settings
	m.mu.RUnlock()

	in := gate.Input{
		Enabled:  enabled,
		Platform: platform,
		Type:     t,
		Now:      m.now(),
		Settings: settings,
		History:  m.history,
	}
	if pc, ok := m.registry.Get(platform); ok {
		in.Config = &pc
		in.Health, _ = m.tracker.Get(platform)
	}
	return gate.Evaluate(in)
}

// GetStatus returns the polling snapshot.
func (m *Manager) GetStatus() models.Status {
	m.mu.RLock()
	enabled, settings := m.enabled, m.settings
	m.mu.RUnlock()

	return models.Status{
		IsEnabled: enabled,
		Platforms: m.tracker.Snapshot(),
		Settings:  settings,
		Stats:     m.history.Stats(),
	}
}

// GetRecentActivity returns up to limit attempts, newest first.
func (m *Manager) GetRecentActivity(limit int) []models.FetchAttempt {
	return m.history.Recent(limit)
}

// UpdateSettings applies a partial update, validates the result, notifies
// listeners and persists. An invalid result leaves settings unchanged.
func (m *Manager) UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.UserSettings, error) {
	m.mu.Lock()
	next := patch.Apply(m.settings)
	if verr := validation.ValidateStruct(&next); verr != nil {
		m.mu.Unlock()
		return models.UserSettings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, verr)
	}
	m.settings = next
	m.mu.Unlock()
	m.sched.SetMinInterval(next.Auto.Interval)

	logging.Ctx(ctx).Info().
		Dur("auto_interval", next.Auto.Interval).
		Int("auto_max_per_day", next.Auto.MaxPerDay).
		Dur("auto_jitter_range", next.Auto.JitterRange).
		Dur("manual_cooldown", next.Manual.Cooldown).
		Int("manual_max_per_day", next.Manual.MaxPerDay).
		Int("manual_emergency_limit", next.Manual.EmergencyLimit).
		Int("emergency_max_per_week", next.Emergency.MaxPerWeek).
		Bool("emergency_requires_approval", next.Emergency.RequiresApproval).
		Msg("settings updated")

	ev := events.New(events.TypeSettingsUpdated, m.now())
	ev.Settings = &next
	m.bus.Publish(ev)
	m.persist(ctx)
	return next, nil
}

// EnableFetching turns the global flag on and reseeds auto fetch timers.
func (m *Manager) EnableFetching(ctx context.Context) {
	m.setEnabled(ctx, true)
}

// DisableFetching turns the global flag off and drops pending auto fetch timers.
// Fetches already in flight complete and record normally.
func (m *Manager) DisableFetching(ctx context.Context) {
	m.setEnabled(ctx, false)
}

func (m *Manager) setEnabled(ctx context.Context, on bool) {
	m.mu.Lock()
	m.enabled = on
	m.mu.Unlock()

	if on {
		m.sched.EnableAuto()
	} else {
		m.sched.DisableAuto()
	}
	logging.Ctx(ctx).Info().Bool("enabled", on).Msg("fetching toggled")

	ev := events.New(events.TypeFetchingToggled, m.now())
	ev.Enabled = &on
	m.bus.Publish(ev)
	m.persist(ctx)
}
