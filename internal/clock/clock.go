// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package clock holds the injectable time, randomness and sleep hooks, and the
// calendar boundaries used by the gate and the scheduler. Boundaries are
// computed in the location of the time passed in, so "midnight" follows the
// server's configured zone.
package clock

import "time"

// Func returns the current time. Components take one so tests can pin time.
type Func func() time.Time

// Real is the wall clock.
func Real() time.Time {
	return time.Now()
}

// OrReal returns f, or Real when f is nil.
func OrReal(f Func) Func {
	if f == nil {
		return Real
	}
	return f
}

// StartOfDay returns local midnight at the start of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextMidnight returns the first instant of the day after t.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// NextHour returns the next wall-clock hour boundary strictly after t.
func NextHour(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour()+1, 0, 0, 0, t.Location())
}
