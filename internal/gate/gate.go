// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package gate decides whether a fetch may run right now.
//
// Evaluate is a pure function over a snapshot of the enable flag, platform
// configuration, health record, user settings and attempt log. It never
// mutates state, so CanFetchData and the fetch path share one implementation
// and tests can drive it with hand-built inputs.
//
// Checks run in a fixed order and the first failing check wins:
//
//	disabled -> unknown_platform -> backoff -> daily_limit -> hourly_limit -> type rules
//
// Type rules come from the user settings: auto fetches are capped per day,
// manual fetches per day and by cooldown, emergency fetches per trailing week
// and per day (manual.emergency_limit). Emergency fetches are still subject to
// backoff and the platform's daily and hourly caps.
package gate

import (
	"fmt"
	"time"

	"github.com/tomtom215/adfetch/internal/clock"
	"github.com/tomtom215/adfetch/internal/models"
)

// EmergencyWindow is the trailing window used for the weekly emergency cap.
const EmergencyWindow = 7 * 24 * time.Hour

// History is the read side of the attempt log the gate counts against.
// *history.Ring satisfies it.
type History interface {
	CountSince(platform string, t models.FetchType, since time.Time) int
	OldestSince(platform string, t models.FetchType, since time.Time) (time.Time, bool)
	Last(platform string, t models.FetchType) (time.Time, bool)
}

// Input is everything one decision depends on.
type Input struct {
	Enabled  bool
	Platform string
	Type     models.FetchType
	Now      time.Time

	// Config is nil when the platform is not registered.
	Config   *models.PlatformConfig
	Health   models.PlatformHealth
	Settings models.UserSettings
	History  History
}

// Evaluate runs the ordered checks and returns the first denial, or Allow.
//
//nolint:gocritic // Input is a value snapshot
func Evaluate(in Input) models.Decision {
	if !in.Enabled {
		return models.Deny(models.DenialDisabled, "automatic and manual fetching is disabled", time.Time{})
	}
	if in.Config == nil {
		return models.Deny(models.DenialUnknownPlatform,
			fmt.Sprintf("platform %q is not configured", in.Platform), time.Time{})
	}

	h := in.Health
	if h.InBackoff(in.Now) {
		return models.Deny(models.DenialBackoff,
			fmt.Sprintf("platform is backing off for %s", h.NextAllowedFetch.Sub(in.Now).Round(time.Second)),
			h.NextAllowedFetch)
	}
	if h.RequestsToday >= in.Config.MaxRequestsPerDay {
		return models.Deny(models.DenialDailyLimit,
			fmt.Sprintf("daily limit of %d requests reached", in.Config.MaxRequestsPerDay),
			clock.NextMidnight(in.Now))
	}
	if h.RequestsThisHour >= in.Config.MaxRequestsPerHour {
		return models.Deny(models.DenialHourlyLimit,
			fmt.Sprintf("hourly limit of %d requests reached", in.Config.MaxRequestsPerHour),
			clock.NextHour(in.Now))
	}

	switch in.Type {
	case models.FetchManual:
		return manual(in)
	case models.FetchEmergency:
		return emergency(in)
	default:
		return auto(in)
	}
}

//nolint:gocritic // Input is a value snapshot
func auto(in Input) models.Decision {
	if in.History == nil {
		return models.Allow()
	}
	limit := in.Settings.Auto.MaxPerDay
	if n := in.History.CountSince(in.Platform, models.FetchAuto, clock.StartOfDay(in.Now)); n >= limit {
		return models.Deny(models.DenialAutoDailyLimit,
			fmt.Sprintf("auto limit of %d fetches per day reached", limit),
			clock.NextMidnight(in.Now))
	}
	return models.Allow()
}

//nolint:gocritic // Input is a value snapshot
func manual(in Input) models.Decision {
	if in.History == nil {
		return models.Allow()
	}
	s := in.Settings.Manual
	today := in.History.CountSince(in.Platform, models.FetchManual, clock.StartOfDay(in.Now))
	if today >= s.MaxPerDay {
		return models.Deny(models.DenialManualDailyLimit,
			fmt.Sprintf("manual limit of %d fetches per day reached", s.MaxPerDay),
			clock.NextMidnight(in.Now))
	}
	if last, ok := in.History.Last(in.Platform, models.FetchManual); ok && s.Cooldown > 0 {
		if next := last.Add(s.Cooldown); in.Now.Before(next) {
			return models.Deny(models.DenialManualCooldown,
				fmt.Sprintf("manual cooldown active for %s", next.Sub(in.Now).Round(time.Second)),
				next)
		}
	}
	return models.Allow()
}

//nolint:gocritic // Input is a value snapshot
func emergency(in Input) models.Decision {
	if in.History == nil {
		return models.Allow()
	}
	s := in.Settings.Emergency
	// Attempts exactly one window old have aged out.
	since := in.Now.Add(-EmergencyWindow + time.Nanosecond)
	if n := in.History.CountSince(in.Platform, models.FetchEmergency, since); n >= s.MaxPerWeek {
		next := in.Now.Add(EmergencyWindow)
		if oldest, ok := in.History.OldestSince(in.Platform, models.FetchEmergency, since); ok {
			next = oldest.Add(EmergencyWindow)
		}
		return models.Deny(models.DenialEmergencyWeeklyLimit,
			fmt.Sprintf("emergency limit of %d fetches per week reached", s.MaxPerWeek),
			next)
	}
	daily := in.Settings.Manual.EmergencyLimit
	if n := in.History.CountSince(in.Platform, models.FetchEmergency, clock.StartOfDay(in.Now)); n >= daily {
		return models.Deny(models.DenialEmergencyDailyLimit,
			fmt.Sprintf("emergency limit of %d fetches per day reached", daily),
			clock.NextMidnight(in.Now))
	}
	return models.Allow()
}
