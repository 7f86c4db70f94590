// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package models

import "time"

// DenialCode is the machine-readable reason a fetch was refused.
type DenialCode string

const (
	DenialDisabled             DenialCode = "disabled"
	DenialUnknownPlatform      DenialCode = "unknown_platform"
	DenialBackoff              DenialCode = "backoff"
	DenialDailyLimit           DenialCode = "daily_limit"
	DenialHourlyLimit          DenialCode = "hourly_limit"
	DenialAutoDailyLimit       DenialCode = "auto_daily_limit"
	DenialManualDailyLimit     DenialCode = "manual_daily_limit"
	DenialManualCooldown       DenialCode = "manual_cooldown"
	DenialEmergencyWeeklyLimit DenialCode = "emergency_weekly_limit"
	DenialEmergencyDailyLimit  DenialCode = "emergency_daily_limit"
	DenialApprovalRequired     DenialCode = "approval_required"
)

// Decision is the outcome of a gate check. Denials are values, not errors.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Code    DenialCode `json:"code,omitempty"`
	Reason  string     `json:"reason,omitempty"`

	// NextAllowed is zero when no resume time is known (disabled, unknown platform).
	NextAllowed time.Time `json:"next_allowed"`
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision.
func Deny(code DenialCode, reason string, next time.Time) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason, NextAllowed: next}
}
