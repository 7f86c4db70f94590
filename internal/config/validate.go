// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/adfetch/internal/store"
	"github.com/tomtom215/adfetch/internal/validation"
)

// Validate runs the struct tag rules and the cross-field checks tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return formatValidationError(verr)
	}
	if err := c.validatePlatforms(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateNATS()
}

func (c *Config) validatePlatforms() error {
	seen := make(map[string]bool, len(c.Platforms))
	for _, p := range c.Platforms {
		if seen[p.Key] {
			return fmt.Errorf("platforms: duplicate key %q", p.Key)
		}
		seen[p.Key] = true
		if p.MaxRequestsPerHour > p.MaxRequestsPerDay {
			return fmt.Errorf("platforms.%s: max_requests_per_hour (%d) exceeds max_requests_per_day (%d)",
				p.Key, p.MaxRequestsPerHour, p.MaxRequestsPerDay)
		}
	}
	for key := range c.Delegate.Tokens {
		if !seen[key] {
			return fmt.Errorf("delegate.tokens: unknown platform %q", key)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case store.BackendRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is required when STORE_BACKEND=redis")
		}
	case store.BackendBadger:
		if !c.Store.Badger.InMemory && c.Store.Badger.Path == "" {
			return errors.New("BADGER_PATH is required unless BADGER_IN_MEMORY=true")
		}
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return errors.New("NATS_URL is required when NATS_ENABLED=true and NATS_EMBEDDED=false")
	}
	return nil
}

// formatValidationError reports every failed field by its key path, e.g.
// "settings.auto.interval failed min=1m".
func formatValidationError(verr *validation.RequestValidationError) error {
	errs := verr.Errors()
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		rule := e.Tag()
		if e.Param() != "" {
			rule += "=" + e.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Path(), rule))
	}
	return errors.New(strings.Join(msgs, "; "))
}
