// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package clock

import (
	"context"
	"math/rand/v2"
	"time"
)

// Rand returns a duration drawn uniformly from [0, n). It returns 0 when n <= 0.
type Rand func(n time.Duration) time.Duration

// RealRand draws from the global math/rand/v2 source.
func RealRand(n time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(n)))
}

// OrRealRand returns r, or RealRand when r is nil.
func OrRealRand(r Rand) Rand {
	if r == nil {
		return RealRand
	}
	return r
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OrSleep returns s, or Sleep when s is nil.
func OrSleep(s Sleeper) Sleeper {
	if s == nil {
		return Sleep
	}
	return s
}
