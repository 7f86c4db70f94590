// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package store

import (
	"fmt"
	"time"
)

// Backend names.
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend string       `koanf:"backend" json:"backend" validate:"oneof=badger redis memory"`
	Badger  BadgerConfig `koanf:"badger" json:"badger"`
	Redis   RedisConfig  `koanf:"redis" json:"redis"`
}

// BadgerConfig configures the embedded BadgerDB backend.
type BadgerConfig struct {
	Path       string `koanf:"path" json:"path"`
	SyncWrites bool   `koanf:"sync_writes" json:"sync_writes"`
	// InMemory keeps everything in RAM. Path is ignored.
	InMemory bool `koanf:"in_memory" json:"in_memory"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr         string        `koanf:"addr" json:"addr"`
	Password     string        `koanf:"password" json:"-"`
	DB           int           `koanf:"db" json:"db" validate:"gte=0"`
	PoolSize     int           `koanf:"pool_size" json:"pool_size" validate:"gte=0"`
	MinIdleConns int           `koanf:"min_idle_conns" json:"min_idle_conns" validate:"gte=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" json:"write_timeout"`
}

// DefaultConfig returns a Badger store under /data/adfetch.
func DefaultConfig() Config {
	return Config{
		Backend: BackendBadger,
		Badger: BadgerConfig{
			Path:       "/data/adfetch",
			SyncWrites: true,
		},
		Redis: RedisConfig{
			Addr:         "127.0.0.1:6379",
			PoolSize:     10,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// Open returns the backend named by cfg.Backend.
func Open(cfg Config) (KV, error) {
	switch cfg.Backend {
	case BackendBadger, "":
		return OpenBadger(cfg.Badger)
	case BackendRedis:
		return OpenRedis(cfg.Redis)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
