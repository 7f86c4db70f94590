// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package clock

import (
	"context"
	"testing"
	"time"
)

func TestBoundaries(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("test", 2*3600)
	now := time.Date(2026, 12, 31, 23, 59, 30, 0, loc)

	tests := []struct {
		name string
		got  time.Time
		want time.Time
	}{
		{"start of day", StartOfDay(now), time.Date(2026, 12, 31, 0, 0, 0, 0, loc)},
		{"next midnight crosses year", NextMidnight(now), time.Date(2027, 1, 1, 0, 0, 0, 0, loc)},
		{"next hour crosses day", NextHour(now), time.Date(2027, 1, 1, 0, 0, 0, 0, loc)},
		{"next hour on boundary", NextHour(time.Date(2026, 5, 1, 10, 0, 0, 0, loc)), time.Date(2026, 5, 1, 11, 0, 0, 0, loc)},
		{"next midnight at midnight", NextMidnight(time.Date(2026, 5, 1, 0, 0, 0, 0, loc)), time.Date(2026, 5, 2, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !tt.got.Equal(tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestOrReal(t *testing.T) {
	t.Parallel()

	if OrReal(nil)().IsZero() {
		t.Error("nil clock should fall back to wall time")
	}
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := OrReal(func() time.Time { return fixed })(); !got.Equal(fixed) {
		t.Errorf("got %v", got)
	}
}

func TestRealRandBounds(t *testing.T) {
	t.Parallel()

	n := 45 * time.Minute
	for i := 0; i < 1000; i++ {
		if d := RealRand(n); d < 0 || d >= n {
			t.Fatalf("RealRand(%v) = %v, out of [0, n)", n, d)
		}
	}
	if d := RealRand(0); d != 0 {
		t.Errorf("RealRand(0) = %v", d)
	}
}

func TestSleepHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Error("Sleep on canceled context returned nil")
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep: %v", err)
	}
}
