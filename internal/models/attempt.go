// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package models

import (
	"fmt"
	"time"
)

// FetchType identifies what triggered a fetch.
type FetchType string

const (
	// FetchAuto is triggered by the scheduler.
	FetchAuto FetchType = "auto"
	// FetchManual is triggered by a user action.
	FetchManual FetchType = "manual"
	// FetchEmergency is a rare user override with a weekly cap.
	FetchEmergency FetchType = "emergency"
)

// ParseFetchType validates and converts s.
func ParseFetchType(s string) (FetchType, error) {
	t := FetchType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid fetch type %q: must be auto, manual or emergency", s)
	}
	return t, nil
}

// Valid reports whether t is auto, manual or emergency.
func (t FetchType) Valid() bool {
	switch t {
	case FetchAuto, FetchManual, FetchEmergency:
		return true
	}
	return false
}

// AttemptStatus is the lifecycle state of a FetchAttempt.
type AttemptStatus string

const (
	AttemptPending     AttemptStatus = "pending"
	AttemptSuccess     AttemptStatus = "success"
	AttemptError       AttemptStatus = "error"
	AttemptRateLimited AttemptStatus = "rate_limited"
	// AttemptAbandoned closes an attempt that never reached the platform:
	// canceled during jitter, or interrupted by a restart. It still counts
	// toward quotas but is not a failure.
	AttemptAbandoned AttemptStatus = "abandoned"
)

// Terminal reports whether the attempt has finished.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSuccess || s == AttemptError || s == AttemptRateLimited || s == AttemptAbandoned
}

// Failed reports whether the attempt finished unsuccessfully.
func (s AttemptStatus) Failed() bool {
	return s == AttemptError || s == AttemptRateLimited
}

// ErrorKind classifies delegate failures.
type ErrorKind string

const (
	// ErrorRateLimited means the remote API throttled us. Backoff is intensified.
	ErrorRateLimited ErrorKind = "rate_limited"
	// ErrorTransient covers network errors, timeouts and 5xx responses.
	ErrorTransient ErrorKind = "transient"
	// ErrorFatal covers failures retrying will not fix, such as revoked credentials.
	ErrorFatal ErrorKind = "fatal"
)

// FetchAttempt is one entry of the attempt log.
type FetchAttempt struct {
	ID           string        `json:"id"`
	Platform     string        `json:"platform"`
	Type         FetchType     `json:"type"`
	Timestamp    time.Time     `json:"timestamp"`
	Status       AttemptStatus `json:"status"`
	DataSize     int           `json:"data_size"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty"`
	RetryCount   int           `json:"retry_count"`
}
