// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package health

import (
	"time"

	"github.com/tomtom215/adfetch/internal/models"
)

const (
	// MinBackoff is the floor applied to every failure.
	MinBackoff = time.Minute
	// MaxBackoff caps compounding failures.
	MaxBackoff = 4 * time.Hour
	// ErrorRateThreshold separates "error" from "degraded" (strictly greater than).
	ErrorRateThreshold = 50.0
	// ErrorRateWindow is the number of recent terminal attempts the rate is computed over.
	ErrorRateWindow = 10
)

// NextBackoff returns the backoff after one more failure.
//
// The multiplier is doubled for rate-limit failures. The result is at least
// MinBackoff, at least retryAfter when the remote sent one, and never above MaxBackoff.
func NextBackoff(current time.Duration, multiplier float64, kind models.ErrorKind, retryAfter time.Duration) time.Duration {
	if multiplier < 1 {
		multiplier = 1
	}
	if kind == models.ErrorRateLimited {
		multiplier *= 2
	}

	next := time.Duration(float64(current) * multiplier)
	if next < MinBackoff {
		next = MinBackoff
	}
	if retryAfter > next {
		next = retryAfter
	}
	if next > MaxBackoff {
		next = MaxBackoff
	}
	return next
}

// failureStatus picks the status after a failure. rate_limited only leaves via
// recovery and error never steps down to degraded on another failure.
func failureStatus(current models.HealthStatus, kind models.ErrorKind, errorRate float64) models.HealthStatus {
	switch {
	case kind == models.ErrorRateLimited:
		return models.HealthRateLimited
	case current == models.HealthRateLimited:
		return models.HealthRateLimited
	case kind == models.ErrorFatal, errorRate > ErrorRateThreshold:
		return models.HealthError
	case current == models.HealthError:
		return models.HealthError
	default:
		return models.HealthDegraded
	}
}

// nextAverage folds d into the running response-time average.
func nextAverage(avg, d time.Duration) time.Duration {
	if avg <= 0 {
		return d
	}
	return (avg + d) / 2
}
