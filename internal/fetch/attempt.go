// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/adfetch/internal/events"
	"github.com/tomtom215/adfetch/internal/health"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/metrics"
	"github.com/tomtom215/adfetch/internal/models"
)

// FetchOptions are per-call overrides.
type FetchOptions struct {
	// Endpoints replaces the platform's configured endpoint list when non-empty.
	Endpoints []string
	// Approved satisfies the emergency approval requirement.
	Approved bool
}

// FetchPlatformData runs one attempt end to end: gate, log, jitter, delegate,
// health update, notification and persistence.
//
// Denials and delegate failures are reported in the result. The returned error
// is non-nil only for an invalid fetch type.
func (m *Manager) FetchPlatformData(ctx context.Context, platform string, t models.FetchType, opts FetchOptions) (models.FetchResult, error) {
	if !t.Valid() {
		return models.FetchResult{}, fmt.Errorf("%w: %q", ErrInvalidFetchType, t)
	}
	ctx = logging.ContextWithPlatform(ctx, platform)

	slot, ok := m.slots[platform]
	if !ok {
		return m.denied(ctx, platform, t, m.decide(platform, t)), nil
	}

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return models.FetchResult{Error: fmt.Sprintf("waiting for %s: %v", platform, ctx.Err())}, nil
	}
	defer func() { <-slot }()

	metrics.TrackInFlight(platform, true)
	defer metrics.TrackInFlight(platform, false)

	if d := m.decide(platform, t); !d.Allowed {
		return m.denied(ctx, platform, t, d), nil
	}

	settings := m.Settings()
	if t == models.FetchEmergency && settings.Emergency.RequiresApproval && !opts.Approved {
		d := models.Deny(models.DenialApprovalRequired, "emergency fetch requires approval", time.Time{})
		return m.denied(ctx, platform, t, d), nil
	}

	pc, _ := m.registry.Get(platform)
	prior, _ := m.tracker.Get(platform)

	attempt := models.FetchAttempt{
		ID:         uuid.NewString(),
		Platform:   platform,
		Type:       t,
		Timestamp:  m.now(),
		Status:     models.AttemptPending,
		RetryCount: prior.ConsecutiveFailures,
	}
	m.history.Append(attempt)
	ctx = logging.ContextWithAttemptID(ctx, attempt.ID)
	log := logging.Ctx(ctx)
	log.Debug().Str("fetch_type", string(t)).Int("retry_count", attempt.RetryCount).Msg("fetch attempt started")

	if spread := jitterRange(pc.JitterRange, settings.Auto.JitterRange); t == models.FetchAuto && spread > 0 {
		jitter := m.rand(spread)
		metrics.RecordJitter(platform, jitter)
		log.Debug().Dur("jitter", jitter).Msg("delaying auto fetch")
		if err := m.sleep(ctx, jitter); err != nil {
			return m.abandon(ctx, attempt, fmt.Errorf("canceled during jitter: %w", err)), nil
		}
	}

	endpoints := pc.Endpoints
	if len(opts.Endpoints) > 0 {
		endpoints = opts.Endpoints
	}

	start := m.now()
	data, err := m.call(ctx, pc, endpoints)
	duration := m.now().Sub(start)

	if err != nil {
		return m.fail(ctx, pc, attempt, duration, err), nil
	}
	return m.succeed(ctx, pc, attempt, duration, data), nil
}

// call runs the delegate under the platform timeout. A delegate that ignores
// its context is abandoned when the timeout fires so the slot is released.
func (m *Manager) call(ctx context.Context, pc models.PlatformConfig, endpoints []string) (*models.PlatformData, error) {
	timeout := pc.FetchTimeout
	if timeout <= 0 {
		timeout = m.cfg.FetchTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := func() (*models.PlatformData, error) {
		return m.delegate.Fetch(callCtx, pc.Key, endpoints)
	}
	if b, ok := m.breakers[pc.Key]; ok {
		guarded := run
		run = func() (*models.PlatformData, error) { return b.execute(guarded) }
	}

	type result struct {
		data *models.PlatformData
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: Transient(fmt.Errorf("delegate panicked: %v", r))}
			}
		}()
		data, err := run()
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, timeoutError(timeout)
		}
		return r.data, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, Transient(fmt.Errorf("fetch canceled: %w", ctx.Err()))
		}
		return nil, timeoutError(timeout)
	}
}

//nolint:gocritic // attempt is a value snapshot
func (m *Manager) succeed(ctx context.Context, pc models.PlatformConfig, attempt models.FetchAttempt, duration time.Duration, data *models.PlatformData) models.FetchResult {
	if data == nil {
		data = &models.PlatformData{Platform: pc.Key}
	}
	if data.FetchedAt.IsZero() {
		data.FetchedAt = m.now()
	}

	m.history.Update(attempt.ID, func(a *models.FetchAttempt) {
		a.Status = models.AttemptSuccess
		a.Duration = duration
		a.DataSize = data.Size()
	})
	attempt, _ = m.history.Get(attempt.ID)

	prior, _ := m.tracker.Get(pc.Key)
	h, err := m.tracker.RecordSuccess(pc.Key, m.now(), duration, m.history.ErrorRate(pc.Key, health.ErrorRateWindow))
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("record success")
	}

	metrics.RecordFetchAttempt(pc.Key, attempt.Type, attempt.Status, duration)
	logging.Ctx(ctx).Info().
		Str("fetch_type", string(attempt.Type)).
		Dur("duration", duration).
		Int("data_size", attempt.DataSize).
		Msg("fetch succeeded")

	m.publishAttempt(attempt, prior.Status, h)
	m.persist(ctx)

	return models.FetchResult{Success: true, Data: data, Attempt: &attempt}
}

//nolint:gocritic // attempt is a value snapshot
func (m *Manager) fail(ctx context.Context, pc models.PlatformConfig, attempt models.FetchAttempt, duration time.Duration, cause error) models.FetchResult {
	kind, retryAfter := Classify(cause)
	status := models.AttemptError
	if kind == models.ErrorRateLimited {
		status = models.AttemptRateLimited
	}

	m.history.Update(attempt.ID, func(a *models.FetchAttempt) {
		a.Status = status
		a.Duration = duration
		a.ErrorMessage = cause.Error()
		a.ErrorKind = kind
	})
	attempt, _ = m.history.Get(attempt.ID)

	prior, _ := m.tracker.Get(pc.Key)
	h, err := m.tracker.RecordFailure(pc.Key, m.now(), health.Failure{
		Kind:       kind,
		Message:    cause.Error(),
		ErrorRate:  m.history.ErrorRate(pc.Key, health.ErrorRateWindow),
		Multiplier: pc.BackoffMultiplier,
		RetryAfter: retryAfter,
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("record failure")
	}

	metrics.RecordFetchAttempt(pc.Key, attempt.Type, attempt.Status, duration)
	logging.Ctx(ctx).Warn().
		Err(cause).
		Str("fetch_type", string(attempt.Type)).
		Str("kind", string(kind)).
		Dur("duration", duration).
		Msg("fetch failed")

	m.publishAttempt(attempt, prior.Status, h)
	m.persist(ctx)

	return models.FetchResult{
		Error:       cause.Error(),
		ErrorKind:   kind,
		NextAllowed: h.NextAllowedFetch,
		Attempt:     &attempt,
	}
}

// abandon closes an attempt that never reached the delegate. Health is left
// alone because the remote platform was not contacted.
//
//nolint:gocritic // attempt is a value snapshot
// jitterRange is the platform's spread, narrowed by the user's auto jitter
// setting when that is set and smaller.
func jitterRange(platform, user time.Duration) time.Duration {
	if user > 0 && user < platform {
		return user
	}
	return platform
}

// abandon closes an attempt that never reached the platform. Health is untouched.
func (m *Manager) abandon(ctx context.Context, attempt models.FetchAttempt, cause error) models.FetchResult {
	m.history.Update(attempt.ID, func(a *models.FetchAttempt) {
		a.Status = models.AttemptAbandoned
		a.ErrorMessage = cause.Error()
	})
	attempt, _ = m.history.Get(attempt.ID)
	logging.Ctx(ctx).Info().Err(cause).Msg("fetch abandoned before delegate call")
	m.persist(ctx)
	return models.FetchResult{Error: cause.Error(), ErrorKind: models.ErrorTransient, Attempt: &attempt}
}

//nolint:gocritic // decision is a value
func (m *Manager) denied(ctx context.Context, platform string, t models.FetchType, d models.Decision) models.FetchResult {
	metrics.RecordDenial(platform, t, d.Code)
	logging.Ctx(ctx).Debug().
		Str("fetch_type", string(t)).
		Str("code", string(d.Code)).
		Str("reason", d.Reason).
		Time("next_allowed", d.NextAllowed).
		Msg("fetch denied")
	return models.FetchResult{
		Denied:      true,
		Code:        d.Code,
		Reason:      d.Reason,
		NextAllowed: d.NextAllowed,
	}
}

//nolint:gocritic // values are copied into the event
func (m *Manager) publishAttempt(a models.FetchAttempt, from models.HealthStatus, h models.PlatformHealth) {
	ev := events.New(events.TypeFetchCompleted, m.now())
	ev.Platform = a.Platform
	ev.Attempt = &a
	ev.Health = &h
	ev.From = from
	ev.To = h.Status
	m.bus.Publish(ev)
}

func (m *Manager) autoFetch(ctx context.Context, platform string) {
	res, err := m.FetchPlatformData(ctx, platform, models.FetchAuto, FetchOptions{})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("auto fetch")
		return
	}
	if res.Denied {
		logging.Ctx(ctx).Info().Str("code", string(res.Code)).Str("reason", res.Reason).Msg("auto fetch skipped")
	}
}

func (m *Manager) hourlyReset(time.Time) {
	m.tracker.ResetHourly()
	m.persist(context.Background())
}

func (m *Manager) dailyReset(time.Time) {
	m.tracker.ResetDaily()
	m.persist(context.Background())
}

func (m *Manager) healthCheck(now time.Time) {
	transitions := m.tracker.Reconcile(now, m.cfg.StaleAfter)
	if len(transitions) == 0 {
		return
	}
	for _, tr := range transitions {
		h, _ := m.tracker.Get(tr.Platform)
		ev := events.New(events.TypeHealthChanged, now)
		ev.Platform = tr.Platform
		ev.From = tr.From
		ev.To = tr.To
		ev.Health = &h
		m.bus.Publish(ev)
	}
	m.persist(context.Background())
}

// RunHealthCheck runs the reconciliation job immediately.
func (m *Manager) RunHealthCheck() {
	m.healthCheck(m.now())
}
