// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package models

import "time"

// AutoSettings are user preferences for scheduler-driven fetches.
type AutoSettings struct {
	Interval    time.Duration `koanf:"interval" json:"interval" validate:"min=1m"`
	MaxPerDay   int           `koanf:"max_per_day" json:"max_per_day" validate:"min=0"`
	JitterRange time.Duration `koanf:"jitter_range" json:"jitter_range" validate:"gte=0"`
}

// ManualSettings limit user-triggered fetches per platform.
type ManualSettings struct {
	MaxPerDay      int           `koanf:"max_per_day" json:"max_per_day" validate:"min=0"`
	Cooldown       time.Duration `koanf:"cooldown" json:"cooldown" validate:"gte=0"`
	EmergencyLimit int           `koanf:"emergency_limit" json:"emergency_limit" validate:"min=0"`
}

// EmergencySettings limit emergency override fetches per platform.
type EmergencySettings struct {
	MaxPerWeek       int  `koanf:"max_per_week" json:"max_per_week" validate:"min=0"`
	RequiresApproval bool `koanf:"requires_approval" json:"requires_approval"`
}

// UserSettings is the runtime-tunable limits document.
type UserSettings struct {
	Auto      AutoSettings      `koanf:"auto" json:"auto"`
	Manual    ManualSettings    `koanf:"manual" json:"manual"`
	Emergency EmergencySettings `koanf:"emergency" json:"emergency"`
}

// DefaultUserSettings returns the settings used until a user changes them.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		Auto: AutoSettings{
			Interval:    4 * time.Hour,
			MaxPerDay:   6,
			JitterRange: 30 * time.Minute,
		},
		Manual: ManualSettings{
			MaxPerDay:      10,
			Cooldown:       time.Hour,
			EmergencyLimit: 3,
		},
		Emergency: EmergencySettings{
			MaxPerWeek:       2,
			RequiresApproval: false,
		},
	}
}

// SettingsPatch is a partial update. Nil fields keep their current value.
type SettingsPatch struct {
	Auto      *AutoPatch      `json:"auto,omitempty"`
	Manual    *ManualPatch    `json:"manual,omitempty"`
	Emergency *EmergencyPatch `json:"emergency,omitempty"`
}

// AutoPatch updates AutoSettings.
type AutoPatch struct {
	Interval    *time.Duration `json:"interval,omitempty"`
	MaxPerDay   *int           `json:"max_per_day,omitempty"`
	JitterRange *time.Duration `json:"jitter_range,omitempty"`
}

// ManualPatch updates ManualSettings.
type ManualPatch struct {
	MaxPerDay      *int           `json:"max_per_day,omitempty"`
	Cooldown       *time.Duration `json:"cooldown,omitempty"`
	EmergencyLimit *int           `json:"emergency_limit,omitempty"`
}

// EmergencyPatch updates EmergencySettings.
type EmergencyPatch struct {
	MaxPerWeek       *int  `json:"max_per_week,omitempty"`
	RequiresApproval *bool `json:"requires_approval,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.Auto == nil && p.Manual == nil && p.Emergency == nil
}

// Apply returns s with every non-nil field of p copied over.
func (p SettingsPatch) Apply(s UserSettings) UserSettings {
	if a := p.Auto; a != nil {
		setDuration(&s.Auto.Interval, a.Interval)
		setInt(&s.Auto.MaxPerDay, a.MaxPerDay)
		setDuration(&s.Auto.JitterRange, a.JitterRange)
	}
	if m := p.Manual; m != nil {
		setInt(&s.Manual.MaxPerDay, m.MaxPerDay)
		setDuration(&s.Manual.Cooldown, m.Cooldown)
		setInt(&s.Manual.EmergencyLimit, m.EmergencyLimit)
	}
	if e := p.Emergency; e != nil {
		setInt(&s.Emergency.MaxPerWeek, e.MaxPerWeek)
		if e.RequiresApproval != nil {
			s.Emergency.RequiresApproval = *e.RequiresApproval
		}
	}
	return s
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}
