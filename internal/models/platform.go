// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package models

import "time"

// Priority orders platforms for display and log triage.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns 0 for high, 1 for medium, 2 for low and anything else.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// PlatformConfig is the static configuration of one ad platform.
// It is loaded at startup and never mutated afterwards.
type PlatformConfig struct {
	Key                string        `koanf:"key" json:"key" validate:"required,max=64"`
	Name               string        `koanf:"name" json:"name" validate:"required"`
	Interval           time.Duration `koanf:"interval" json:"interval" validate:"min=1m"`
	MaxRequestsPerDay  int           `koanf:"max_requests_per_day" json:"max_requests_per_day" validate:"min=1"`
	MaxRequestsPerHour int           `koanf:"max_requests_per_hour" json:"max_requests_per_hour" validate:"min=1"`
	BackoffMultiplier  float64       `koanf:"backoff_multiplier" json:"backoff_multiplier" validate:"gte=1"`
	JitterRange        time.Duration `koanf:"jitter_range" json:"jitter_range" validate:"gte=0"`
	Priority           Priority      `koanf:"priority" json:"priority" validate:"oneof=high medium low"`
	Endpoints          []string      `koanf:"endpoints" json:"endpoints" validate:"dive,required"`

	// FetchTimeout bounds one delegate call. Zero means use the service default.
	FetchTimeout time.Duration `koanf:"fetch_timeout" json:"fetch_timeout" validate:"gte=0"`

	// BaseURL is only read by the HTTP delegate adapter.
	BaseURL string `koanf:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
}

// DefaultPlatforms is the built-in platform table used when no platforms are configured.
func DefaultPlatforms() []PlatformConfig {
	return []PlatformConfig{
		{
			Key:                "google_ads",
			Name:               "Google Ads",
			Interval:           4 * time.Hour,
			MaxRequestsPerDay:  24,
			MaxRequestsPerHour: 4,
			BackoffMultiplier:  2.0,
			JitterRange:        15 * time.Minute,
			Priority:           PriorityHigh,
			Endpoints:          []string{"campaigns", "ad_groups", "keywords", "metrics"},
		},
		{
			Key:                "meta_ads",
			Name:               "Meta Ads",
			Interval:           4 * time.Hour,
			MaxRequestsPerDay:  20,
			MaxRequestsPerHour: 3,
			BackoffMultiplier:  2.0,
			JitterRange:        20 * time.Minute,
			Priority:           PriorityHigh,
			Endpoints:          []string{"campaigns", "adsets", "ads", "insights"},
		},
		{
			Key:                "tiktok_ads",
			Name:               "TikTok Ads",
			Interval:           6 * time.Hour,
			MaxRequestsPerDay:  12,
			MaxRequestsPerHour: 2,
			BackoffMultiplier:  1.5,
			JitterRange:        30 * time.Minute,
			Priority:           PriorityMedium,
			Endpoints:          []string{"campaigns", "adgroups", "reports"},
		},
		{
			Key:                "linkedin_ads",
			Name:               "LinkedIn Ads",
			Interval:           8 * time.Hour,
			MaxRequestsPerDay:  8,
			MaxRequestsPerHour: 2,
			BackoffMultiplier:  1.5,
			JitterRange:        45 * time.Minute,
			Priority:           PriorityMedium,
			Endpoints:          []string{"campaigns", "creatives", "analytics"},
		},
		{
			Key:                "microsoft_ads",
			Name:               "Microsoft Advertising",
			Interval:           12 * time.Hour,
			MaxRequestsPerDay:  6,
			MaxRequestsPerHour: 1,
			BackoffMultiplier:  1.5,
			JitterRange:        45 * time.Minute,
			Priority:           PriorityLow,
			Endpoints:          []string{"campaigns", "reports"},
		},
	}
}
