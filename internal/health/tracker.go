// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package health tracks live per-platform state: status, counters, error rate,
// response time and backoff. Every mutation goes through Tracker's mutex, so the
// periodic reset and reconciliation jobs cannot corrupt a record that a fetch is
// updating at the same time.
package health

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/adfetch/internal/clock"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/metrics"
	"github.com/tomtom215/adfetch/internal/models"
)

// ErrUnknownPlatform is returned when a record does not exist.
var ErrUnknownPlatform = errors.New("health: unknown platform")

// Failure describes one failed attempt.
type Failure struct {
	Kind       models.ErrorKind
	Message    string
	ErrorRate  float64
	Multiplier float64
	RetryAfter time.Duration
}

// Transition records a status change made by a reconciliation job.
type Transition struct {
	Platform string
	From     models.HealthStatus
	To       models.HealthStatus
}

// Tracker owns one PlatformHealth per configured platform. Records are created
// at construction and never deleted.
type Tracker struct {
	mu        sync.RWMutex
	platforms map[string]*models.PlatformHealth
	now       clock.Func
}

// NewTracker creates healthy records for keys.
func NewTracker(keys []string, now clock.Func) *Tracker {
	now = clock.OrReal(now)
	t := &Tracker{
		platforms: make(map[string]*models.PlatformHealth, len(keys)),
		now:       now,
	}
	started := now()
	for _, k := range keys {
		h := &models.PlatformHealth{
			Platform:      k,
			Status:        models.HealthHealthy,
			TrackingSince: started,
		}
		t.platforms[k] = h
		metrics.RecordPlatformHealth(*h)
	}
	return t
}

// Get returns a copy of the platform's record.
func (t *Tracker) Get(platform string) (models.PlatformHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.platforms[platform]
	if !ok {
		return models.PlatformHealth{}, false
	}
	return *h, true
}

// Snapshot returns copies of every record.
func (t *Tracker) Snapshot() map[string]models.PlatformHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]models.PlatformHealth, len(t.platforms))
	for k, h := range t.platforms {
		out[k] = *h
	}
	return out
}

// RecordSuccess heals the platform: healthy status, zero backoff, counters incremented.
func (t *Tracker) RecordSuccess(platform string, at time.Time, duration time.Duration, errorRate float64) (models.PlatformHealth, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.platforms[platform]
	if !ok {
		return models.PlatformHealth{}, ErrUnknownPlatform
	}

	from := h.Status
	h.Status = models.HealthHealthy
	h.LastSuccessfulFetch = at
	h.CurrentBackoff = 0
	h.NextAllowedFetch = time.Time{}
	h.AvgResponseTime = nextAverage(h.AvgResponseTime, duration)
	h.ErrorRate = errorRate
	h.RequestsToday++
	h.RequestsThisHour++
	h.ConsecutiveFailures = 0
	h.LastError = ""
	h.LastErrorKind = ""

	if from != h.Status {
		logging.Info().Str("platform", platform).Str("from", string(from)).Str("to", string(h.Status)).Msg("platform recovered")
	}
	metrics.RecordPlatformHealth(*h)
	return *h, nil
}

// RecordFailure applies the failure classification and exponential backoff.
func (t *Tracker) RecordFailure(platform string, at time.Time, f Failure) (models.PlatformHealth, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.platforms[platform]
	if !ok {
		return models.PlatformHealth{}, ErrUnknownPlatform
	}

	from := h.Status
	h.ErrorRate = f.ErrorRate
	h.Status = failureStatus(h.Status, f.Kind, f.ErrorRate)
	h.CurrentBackoff = NextBackoff(h.CurrentBackoff, f.Multiplier, f.Kind, f.RetryAfter)
	h.NextAllowedFetch = at.Add(h.CurrentBackoff)
	h.ConsecutiveFailures++
	h.LastError = f.Message
	h.LastErrorKind = f.Kind

	logging.Warn().
		Str("platform", platform).
		Str("from", string(from)).
		Str("to", string(h.Status)).
		Str("kind", string(f.Kind)).
		Float64("error_rate", h.ErrorRate).
		Dur("backoff", h.CurrentBackoff).
		Time("next_allowed", h.NextAllowedFetch).
		Msg("platform backing off")
	metrics.RecordPlatformHealth(*h)
	return *h, nil
}

// ResetHourly zeroes requestsThisHour for every platform.
func (t *Tracker) ResetHourly() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.platforms {
		h.RequestsThisHour = 0
		metrics.RecordPlatformHealth(*h)
	}
}

// ResetDaily zeroes requestsToday for every platform.
func (t *Tracker) ResetDaily() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.platforms {
		h.RequestsToday = 0
		metrics.RecordPlatformHealth(*h)
	}
}

// Reconcile runs the periodic health check at now.
//
// A rate_limited platform whose backoff has expired becomes healthy with zero
// backoff. A healthy platform without a success for longer than staleAfter
// becomes degraded. Transitions are returned sorted by platform.
func (t *Tracker) Reconcile(now time.Time, staleAfter time.Duration) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Transition
	for k, h := range t.platforms {
		from := h.Status
		switch {
		case h.Status == models.HealthRateLimited && !now.Before(h.NextAllowedFetch):
			h.Status = models.HealthHealthy
			h.CurrentBackoff = 0
		case h.Status == models.HealthHealthy && staleAfter > 0 && now.Sub(lastFresh(h)) > staleAfter:
			h.Status = models.HealthDegraded
		}
		if from != h.Status {
			out = append(out, Transition{Platform: k, From: from, To: h.Status})
			metrics.RecordPlatformHealth(*h)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	for _, tr := range out {
		logging.Info().Str("platform", tr.Platform).Str("from", string(tr.From)).Str("to", string(tr.To)).Msg("health check transition")
	}
	return out
}

func lastFresh(h *models.PlatformHealth) time.Time {
	if h.LastSuccessfulFetch.IsZero() {
		return h.TrackingSince
	}
	return h.LastSuccessfulFetch
}

// Restore overwrites records for known platforms with persisted values.
// Unknown platforms and invalid statuses are ignored.
func (t *Tracker) Restore(saved map[string]models.PlatformHealth) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, s := range saved {
		h, ok := t.platforms[k]
		if !ok || !s.Status.Valid() {
			continue
		}
		s.Platform = k
		if s.TrackingSince.IsZero() {
			s.TrackingSince = h.TrackingSince
		}
		*h = s
		metrics.RecordPlatformHealth(*h)
		n++
	}
	return n
}
