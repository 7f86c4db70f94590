// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package registry holds the immutable table of configured ad platforms.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/adfetch/internal/models"
	"github.com/tomtom215/adfetch/internal/validation"
)

// ErrNoPlatforms is returned when the registry would be empty.
var ErrNoPlatforms = errors.New("registry: no platforms configured")

// Registry is safe for concurrent use because it is never mutated after New.
type Registry struct {
	platforms map[string]models.PlatformConfig
	keys      []string
}

// New validates configs and builds the registry. Platforms without a fetch
// timeout inherit defaultTimeout.
func New(configs []models.PlatformConfig, defaultTimeout time.Duration) (*Registry, error) {
	if len(configs) == 0 {
		return nil, ErrNoPlatforms
	}

	r := &Registry{platforms: make(map[string]models.PlatformConfig, len(configs))}

	for i := range configs {
		cfg := configs[i]
		if verr := validation.ValidateStruct(&cfg); verr != nil {
			return nil, fmt.Errorf("registry: platform %d (%q): %w", i, cfg.Key, verr)
		}
		if _, dup := r.platforms[cfg.Key]; dup {
			return nil, fmt.Errorf("registry: duplicate platform key %q", cfg.Key)
		}
		if cfg.FetchTimeout == 0 {
			cfg.FetchTimeout = defaultTimeout
		}
		cfg.Endpoints = append([]string(nil), cfg.Endpoints...)
		r.platforms[cfg.Key] = cfg
		r.keys = append(r.keys, cfg.Key)
	}

	sort.SliceStable(r.keys, func(i, j int) bool {
		pi, pj := r.platforms[r.keys[i]].Priority.Rank(), r.platforms[r.keys[j]].Priority.Rank()
		if pi != pj {
			return pi < pj
		}
		return r.keys[i] < r.keys[j]
	})
	return r, nil
}

// Get returns a copy of the platform's configuration.
func (r *Registry) Get(key string) (models.PlatformConfig, bool) {
	cfg, ok := r.platforms[key]
	if !ok {
		return models.PlatformConfig{}, false
	}
	cfg.Endpoints = append([]string(nil), cfg.Endpoints...)
	return cfg, true
}

// Has reports whether key is configured.
func (r *Registry) Has(key string) bool {
	_, ok := r.platforms[key]
	return ok
}

// Keys returns platform keys ordered by priority, then name.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.keys...)
}

// All returns every configuration in Keys order.
func (r *Registry) All() []models.PlatformConfig {
	out := make([]models.PlatformConfig, 0, len(r.keys))
	for _, k := range r.keys {
		cfg, _ := r.Get(k)
		out = append(out, cfg)
	}
	return out
}

// Len returns the number of platforms.
func (r *Registry) Len() int {
	return len(r.keys)
}
