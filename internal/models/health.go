// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package models

import "time"

// HealthStatus is the state of a platform's fetch pipeline.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthDegraded    HealthStatus = "degraded"
	HealthError       HealthStatus = "error"
	HealthRateLimited HealthStatus = "rate_limited"
)

// Valid reports whether s is one of the four known states.
func (s HealthStatus) Valid() bool {
	switch s {
	case HealthHealthy, HealthDegraded, HealthError, HealthRateLimited:
		return true
	}
	return false
}

// PlatformHealth is the live state of one platform. Owned by health.Tracker.
type PlatformHealth struct {
	Platform            string        `json:"platform"`
	Status              HealthStatus  `json:"status"`
	LastSuccessfulFetch time.Time     `json:"last_successful_fetch"`
	ErrorRate           float64       `json:"error_rate"`
	AvgResponseTime     time.Duration `json:"avg_response_time"`
	CurrentBackoff      time.Duration `json:"current_backoff"`
	RequestsToday       int           `json:"requests_today"`
	RequestsThisHour    int           `json:"requests_this_hour"`
	NextAllowedFetch    time.Time     `json:"next_allowed_fetch"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
	LastErrorKind       ErrorKind     `json:"last_error_kind,omitempty"`

	// TrackingSince anchors staleness for platforms that never succeeded.
	TrackingSince time.Time `json:"tracking_since"`
}

// InBackoff reports whether now is still inside the backoff window.
func (h PlatformHealth) InBackoff(now time.Time) bool {
	return !h.NextAllowedFetch.IsZero() && now.Before(h.NextAllowedFetch)
}
