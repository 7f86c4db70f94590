// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package fetch

import (
	"time"

	"github.com/tomtom215/adfetch/internal/history"
	"github.com/tomtom215/adfetch/internal/scheduler"
)

// Config tunes the manager. Zero fields fall back to DefaultConfig values.
type Config struct {
	// FetchTimeout bounds a delegate call for platforms without their own timeout.
	FetchTimeout time.Duration `koanf:"timeout" json:"timeout" validate:"gte=0"`

	// HistorySize is the attempt ring capacity.
	HistorySize int `koanf:"history_size" json:"history_size" validate:"gte=0"`

	// InitialDelayMax spreads the first auto fetch of each platform over [0, InitialDelayMax].
	InitialDelayMax time.Duration `koanf:"initial_delay_max" json:"initial_delay_max" validate:"gte=0"`

	HealthCheckInterval time.Duration `koanf:"health_check_interval" json:"health_check_interval" validate:"gte=0"`

	// StaleAfter downgrades a healthy platform without a success for this long.
	StaleAfter time.Duration `koanf:"stale_after" json:"stale_after" validate:"gte=0"`

	// StateKey is the store key holding the snapshot.
	StateKey string `koanf:"state_key" json:"state_key"`

	PersistTimeout time.Duration `koanf:"persist_timeout" json:"persist_timeout" validate:"gte=0"`

	// EnabledOnStart is the global enable flag before any snapshot is restored.
	EnabledOnStart bool `koanf:"enabled_on_start" json:"enabled_on_start"`

	// RestoreEnabled lets a restored snapshot override EnabledOnStart.
	RestoreEnabled bool `koanf:"restore_enabled" json:"restore_enabled"`

	CircuitBreaker BreakerConfig `koanf:"circuit_breaker" json:"circuit_breaker"`
}

// BreakerConfig configures the optional per-platform circuit breaker.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`
	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `koanf:"max_requests" json:"max_requests"`
	// Interval clears counts while closed.
	Interval time.Duration `koanf:"interval" json:"interval"`
	// Timeout is how long the breaker stays open before probing.
	Timeout      time.Duration `koanf:"timeout" json:"timeout"`
	MinRequests  uint32        `koanf:"min_requests" json:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio" json:"failure_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	sched := scheduler.DefaultConfig()
	return Config{
		FetchTimeout:        30 * time.Second,
		HistorySize:         history.DefaultCapacity,
		InitialDelayMax:     sched.InitialDelayMax,
		HealthCheckInterval: sched.HealthCheckInterval,
		StaleAfter:          24 * time.Hour,
		StateKey:            "adfetch:state",
		PersistTimeout:      5 * time.Second,
		EnabledOnStart:      true,
		RestoreEnabled:      true,
		CircuitBreaker: BreakerConfig{
			Enabled:      false,
			MaxRequests:  1,
			Interval:     time.Hour,
			Timeout:      10 * time.Minute,
			MinRequests:  5,
			FailureRatio: 0.8,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = d.HealthCheckInterval
	}
	if c.StateKey == "" {
		c.StateKey = d.StateKey
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	return c
}
