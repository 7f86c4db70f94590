// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package history keeps the bounded fetch attempt log.
//
// Ring is both the live source for rate-limit counting (per-type daily counts,
// last manual attempt, emergency per week, error rate) and the persisted
// snapshot, so the two can never disagree.
//
// The activity buffer holds the newest Cap() attempts. An attempt pushed out of
// it while still younger than Retention moves to a held list, so quota counts
// never lose entries to busy neighbours. Held attempts are counted and
// persisted but do not show up in Recent, Stats or ErrorRate.
package history

import (
	"sync"
	"time"

	"github.com/tomtom215/adfetch/internal/models"
)

// DefaultCapacity is the number of attempts in the activity buffer.
const DefaultCapacity = 100

// Retention is how long an evicted attempt is held for quota counting. It
// covers the weekly emergency window.
const Retention = 7 * 24 * time.Hour

// maxHeld bounds the held list when limits are configured very high.
const maxHeld = 5000

// Ring is a fixed-capacity circular buffer of attempts. Safe for concurrent use.
type Ring struct {
	mu    sync.RWMutex
	buf   []models.FetchAttempt
	start int // index of the oldest entry
	size  int

	// held is oldest first, and older than everything in buf.
	held []models.FetchAttempt
}

// NewRing returns an empty ring. capacity <= 0 selects DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]models.FetchAttempt, capacity)}
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of retained attempts.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Append adds a at the newest position. When the buffer is full the oldest
// entry moves to the held list.
func (r *Ring) Append(a models.FetchAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(a)
}

func (r *Ring) appendLocked(a models.FetchAttempt) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = a
		r.size++
		return
	}
	r.hold(r.buf[r.start], a.Timestamp)
	r.buf[r.start] = a
	r.start = (r.start + 1) % len(r.buf)
}

// hold keeps evicted while it is inside Retention of now and drops held
// entries that have aged out. Caller holds the lock.
func (r *Ring) hold(evicted models.FetchAttempt, now time.Time) {
	cutoff := now.Add(-Retention)
	if evicted.Timestamp.After(cutoff) {
		r.held = append(r.held, evicted)
	}
	drop := 0
	for drop < len(r.held) && !r.held[drop].Timestamp.After(cutoff) {
		drop++
	}
	if extra := len(r.held) - drop - maxHeld; extra > 0 {
		drop += extra
	}
	if drop > 0 {
		r.held = append(r.held[:0:0], r.held[drop:]...)
	}
}

// Held returns the number of evicted attempts still held for quota counting.
func (r *Ring) Held() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.held)
}

// each calls fn for every attempt, held ones first, oldest to newest.
// Caller holds the lock.
func (r *Ring) each(fn func(a *models.FetchAttempt)) {
	for i := range r.held {
		fn(&r.held[i])
	}
	for i := 0; i < r.size; i++ {
		fn(&r.buf[r.at(i)])
	}
}

// at returns the i-th oldest entry index. Caller holds the lock.
func (r *Ring) at(i int) int {
	return (r.start + i) % len(r.buf)
}

// Update applies fn to the attempt with id. Returns false if it is gone.
func (r *Ring) Update(id string, fn func(*models.FetchAttempt)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.findLocked(id); a != nil {
		fn(a)
		return true
	}
	return false
}

func (r *Ring) findLocked(id string) *models.FetchAttempt {
	for i := r.size - 1; i >= 0; i-- {
		if a := &r.buf[r.at(i)]; a.ID == id {
			return a
		}
	}
	for i := len(r.held) - 1; i >= 0; i-- {
		if r.held[i].ID == id {
			return &r.held[i]
		}
	}
	return nil
}

// Get returns a copy of the attempt with id.
func (r *Ring) Get(id string) (models.FetchAttempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a := r.findLocked(id); a != nil {
		return *a, true
	}
	return models.FetchAttempt{}, false
}

// Recent returns up to limit attempts, newest first. limit <= 0 returns all.
func (r *Ring) Recent(limit int) []models.FetchAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]models.FetchAttempt, 0, limit)
	for i := r.size - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.buf[r.at(i)])
	}
	return out
}

// All returns every retained attempt, held ones included, oldest first.
func (r *Ring) All() []models.FetchAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.FetchAttempt, 0, len(r.held)+r.size)
	r.each(func(a *models.FetchAttempt) { out = append(out, *a) })
	return out
}

// Restore replaces the contents with attempts (oldest first), as returned by
// All. The newest Cap() fill the buffer and older ones are held while inside
// Retention of the newest.
func (r *Ring) Restore(attempts []models.FetchAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start, r.size, r.held = 0, 0, nil
	for _, a := range attempts {
		r.appendLocked(a)
	}
}

// CountSince counts attempts for platform of type t with Timestamp >= since.
// Every logged attempt counts regardless of outcome.
func (r *Ring) CountSince(platform string, t models.FetchType, since time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	r.each(func(a *models.FetchAttempt) {
		if a.Platform == platform && a.Type == t && !a.Timestamp.Before(since) {
			n++
		}
	})
	return n
}

// OldestSince returns the earliest timestamp counted by CountSince.
func (r *Ring) OldestSince(platform string, t models.FetchType, since time.Time) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var oldest time.Time
	found := false
	r.each(func(a *models.FetchAttempt) {
		if a.Platform != platform || a.Type != t || a.Timestamp.Before(since) {
			return
		}
		if !found || a.Timestamp.Before(oldest) {
			oldest, found = a.Timestamp, true
		}
	})
	return oldest, found
}

// Last returns the timestamp of the newest attempt for platform of type t.
func (r *Ring) Last(platform string, t models.FetchType) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := r.size - 1; i >= 0; i-- {
		a := &r.buf[r.at(i)]
		if a.Platform == platform && a.Type == t {
			return a.Timestamp, true
		}
	}
	for i := len(r.held) - 1; i >= 0; i-- {
		if a := &r.held[i]; a.Platform == platform && a.Type == t {
			return a.Timestamp, true
		}
	}
	return time.Time{}, false
}

// ErrorRate returns the failure percentage (0-100) over the last window
// terminal attempts for platform. Pending and abandoned attempts are skipped
// since neither reached the platform.
func (r *Ring) ErrorRate(platform string, window int) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total, failed := 0, 0
	for i := r.size - 1; i >= 0 && total < window; i-- {
		a := &r.buf[r.at(i)]
		if a.Platform != platform || !reached(a.Status) {
			continue
		}
		total++
		if a.Status.Failed() {
			failed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failed) * 100 / float64(total)
}

// Stats summarizes terminal attempts in the ring, abandoned ones excluded.
func (r *Ring) Stats() models.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		total, ok int
		dur       time.Duration
	)
	for i := 0; i < r.size; i++ {
		a := &r.buf[r.at(i)]
		if !reached(a.Status) {
			continue
		}
		total++
		if a.Status == models.AttemptSuccess {
			ok++
			dur += a.Duration
		}
	}
	s := models.Stats{TotalFetches: total}
	if total > 0 {
		s.SuccessRate = float64(ok) * 100 / float64(total)
	}
	if ok > 0 {
		s.AvgResponseTime = dur / time.Duration(ok)
	}
	return s
}

func reached(s models.AttemptStatus) bool {
	return s.Terminal() && s != models.AttemptAbandoned
}
