// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package scheduler runs automatic fetches and the periodic maintenance jobs from
one goroutine and one timer.

Jobs:
  - auto fetch, one per platform: first run after a random delay in
    [0, InitialDelayMax], then every platform interval, or the floor set
    with SetMinInterval when that is longer
  - hourly reset at every wall-clock hour boundary
  - daily reset at every local midnight
  - health check every HealthCheckInterval

The loop computes the earliest due time over all jobs, sleeps on a single
timer, runs everything that is due, and repeats. EnableAuto and DisableAuto
wake the loop so it can recompute. Maintenance jobs keep running while
automatic fetching is disabled.

Auto fetches run on their own goroutine. A platform whose previous auto fetch
has not returned when its next slot arrives is skipped for that slot.
*/
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/adfetch/internal/clock"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/metrics"
)

// Job names used in logs and metrics.
const (
	JobAutoFetch   = "auto_fetch"
	JobSkipped     = "auto_fetch_skipped"
	JobHourlyReset = "hourly_reset"
	JobDailyReset  = "daily_reset"
	JobHealthCheck = "health_check"
)

var (
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler: already running")
	// ErrNotRunning is returned by Stop on a stopped scheduler.
	ErrNotRunning = errors.New("scheduler: not running")
)

// Platform is one auto fetch job.
type Platform struct {
	Key      string
	Interval time.Duration
}

// Config holds the maintenance cadence.
type Config struct {
	InitialDelayMax     time.Duration
	HealthCheckInterval time.Duration
}

// DefaultConfig returns a 30 minute initial spread and a 5 minute health check.
func DefaultConfig() Config {
	return Config{
		InitialDelayMax:     30 * time.Minute,
		HealthCheckInterval: 5 * time.Minute,
	}
}

// Hooks are the callbacks the scheduler drives. Nil hooks are skipped.
type Hooks struct {
	AutoFetch   func(ctx context.Context, platform string)
	HourlyReset func(now time.Time)
	DailyReset  func(now time.Time)
	HealthCheck func(now time.Time)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source.
func WithClock(now clock.Func) Option {
	return func(s *Scheduler) { s.now = clock.OrReal(now) }
}

// WithRand sets the random source for initial delays.
func WithRand(r clock.Rand) Option {
	return func(s *Scheduler) { s.rand = clock.OrRealRand(r) }
}

// Scheduler owns every timer in the process.
type Scheduler struct {
	cfg       Config
	hooks     Hooks
	platforms []Platform
	now       clock.Func
	rand      clock.Rand

	mu          sync.Mutex
	auto        map[string]time.Time
	inFlight    map[string]bool
	minInterval time.Duration
	autoEnabled bool
	hourly      time.Time
	daily       time.Time
	health      time.Time
	running     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	done        chan struct{}

	wake chan struct{}
	wg   sync.WaitGroup
}

// New creates a stopped scheduler with maintenance jobs seeded from the
// current time and automatic fetching disabled. Platforms are visited in the
// order given when several are due at once.
func New(platforms []Platform, cfg Config, hooks Hooks, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.InitialDelayMax < 0 {
		cfg.InitialDelayMax = 0
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}

	s := &Scheduler{
		cfg:       cfg,
		hooks:     hooks,
		platforms: append([]Platform(nil), platforms...),
		now:       clock.Real,
		rand:      clock.RealRand,
		auto:      make(map[string]time.Time),
		inFlight:  make(map[string]bool),
		wake:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}

	now := s.now()
	s.hourly = clock.NextHour(now)
	s.daily = clock.NextMidnight(now)
	s.health = now.Add(cfg.HealthCheckInterval)
	return s
}

// Start launches the loop. The loop stops when ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(s.runCtx, s.done)

	logging.Info().Int("platforms", len(s.platforms)).Bool("auto_enabled", s.autoEnabled).Msg("scheduler started")
	return nil
}

// Stop ends the loop and waits for in-flight auto fetches to return.
// Their context is canceled.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.wg.Wait()
	logging.Info().Msg("scheduler stopped")
	return nil
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// EnableAuto (re)seeds every platform's auto job with a fresh random initial delay.
func (s *Scheduler) EnableAuto() {
	now := s.now()
	s.mu.Lock()
	for _, p := range s.platforms {
		s.auto[p.Key] = now.Add(s.rand(s.cfg.InitialDelayMax + 1))
	}
	s.autoEnabled = true
	s.mu.Unlock()
	metrics.SetAutoEnabled(true)
	s.signal()
}

// DisableAuto drops every pending auto job. In-flight fetches are not interrupted.
func (s *Scheduler) DisableAuto() {
	s.mu.Lock()
	clear(s.auto)
	s.autoEnabled = false
	s.mu.Unlock()
	metrics.SetAutoEnabled(false)
	s.signal()
}

// AutoEnabled reports whether auto jobs are scheduled.
func (s *Scheduler) AutoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoEnabled
}

// NextAuto returns when platform's next auto fetch is due.
func (s *Scheduler) NextAuto(platform string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.auto[platform]
	return t, ok
}

// SetMinInterval sets a floor under every platform's auto interval. Slots
// already scheduled keep their time; the floor applies from the next one.
func (s *Scheduler) SetMinInterval(d time.Duration) {
	s.mu.Lock()
	s.minInterval = d
	s.mu.Unlock()
}

// interval is the effective spacing for p. Caller holds mu.
func (s *Scheduler) interval(p Platform) time.Duration {
	if s.minInterval > p.Interval {
		return s.minInterval
	}
	return p.Interval
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		next := s.Tick(s.now())
		d := next.Sub(s.now())
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
		logging.Trace().Time("next_wake", next).Dur("sleep", d).Msg("scheduler idle")

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// Tick runs every job due at now and returns the earliest time anything is due next.
// The loop calls it after every wake; tests call it directly with a pinned clock.
func (s *Scheduler) Tick(now time.Time) time.Time {
	s.mu.Lock()
	var runDaily, runHourly, runHealth bool
	if !now.Before(s.daily) {
		runDaily = true
		s.daily = clock.NextMidnight(now)
	}
	if !now.Before(s.hourly) {
		runHourly = true
		s.hourly = clock.NextHour(now)
	}
	if !now.Before(s.health) {
		runHealth = true
		s.health = now.Add(s.cfg.HealthCheckInterval)
	}

	var due []string
	for _, p := range s.platforms {
		at, ok := s.auto[p.Key]
		if !ok || now.Before(at) {
			continue
		}
		s.auto[p.Key] = now.Add(s.interval(p))
		if s.inFlight[p.Key] {
			metrics.RecordSchedulerJob(JobSkipped)
			logging.Warn().Str("platform", p.Key).Msg("previous auto fetch still running, skipping slot")
			continue
		}
		s.inFlight[p.Key] = true
		due = append(due, p.Key)
	}

	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(len(due))
	s.mu.Unlock()

	if runDaily {
		s.runMaintenance(JobDailyReset, s.hooks.DailyReset, now)
	}
	if runHourly {
		s.runMaintenance(JobHourlyReset, s.hooks.HourlyReset, now)
	}
	if runHealth {
		s.runMaintenance(JobHealthCheck, s.hooks.HealthCheck, now)
	}
	for _, key := range due {
		go s.runAuto(ctx, key)
	}

	return s.nextWake()
}

func (s *Scheduler) nextWake() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.daily
	for _, t := range []time.Time{s.hourly, s.health} {
		if t.Before(next) {
			next = t
		}
	}
	for _, t := range s.auto {
		if t.Before(next) {
			next = t
		}
	}
	return next
}

func (s *Scheduler) runMaintenance(name string, fn func(time.Time), now time.Time) {
	metrics.RecordSchedulerJob(name)
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("job", name).Interface("panic", r).Msg("scheduler job panicked")
		}
	}()
	logging.Debug().Str("job", name).Time("at", now).Msg("running scheduler job")
	fn(now)
}

func (s *Scheduler) runAuto(ctx context.Context, platform string) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("platform", platform).Interface("panic", r).Msg("auto fetch panicked")
		}
		s.mu.Lock()
		delete(s.inFlight, platform)
		s.mu.Unlock()
	}()

	metrics.RecordSchedulerJob(JobAutoFetch)
	if s.hooks.AutoFetch != nil {
		s.hooks.AutoFetch(logging.ContextWithPlatform(ctx, platform), platform)
	}
}
