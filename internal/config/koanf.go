// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when ADFETCH_CONFIG is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/adfetch/config.yaml",
	"/etc/adfetch/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "ADFETCH_CONFIG"

// tokenEnvPrefix maps DELEGATE_TOKEN_<PLATFORM> onto delegate.tokens.<platform>.
const tokenEnvPrefix = "delegate_token_"

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence, then validates it.
func Load() (*Config, error) {
	return load(findConfigFile())
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"api.cors_origins",
	"websocket.allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"cors_origins":              "api.cors_origins",
	"rate_limit_requests":       "api.rate_limit_requests",
	"rate_limit_window":         "api.rate_limit_window",
	"disable_rate_limit":        "api.rate_limit_disabled",
	"fetch_rate_limit_requests": "api.fetch_rate_limit_requests",

	"ws_allowed_origins": "websocket.allowed_origins",
	"ws_buffer_size":     "websocket.buffer_size",

	"fetch_timeout":               "fetch.timeout",
	"fetch_history_size":          "fetch.history_size",
	"fetch_initial_delay_max":     "fetch.initial_delay_max",
	"fetch_health_check_interval": "fetch.health_check_interval",
	"fetch_stale_after":           "fetch.stale_after",
	"fetch_state_key":             "fetch.state_key",
	"fetch_persist_timeout":       "fetch.persist_timeout",
	"fetch_enabled_on_start":      "fetch.enabled_on_start",
	"fetch_restore_enabled":       "fetch.restore_enabled",

	"circuit_breaker_enabled":       "fetch.circuit_breaker.enabled",
	"circuit_breaker_max_requests":  "fetch.circuit_breaker.max_requests",
	"circuit_breaker_interval":      "fetch.circuit_breaker.interval",
	"circuit_breaker_timeout":       "fetch.circuit_breaker.timeout",
	"circuit_breaker_min_requests":  "fetch.circuit_breaker.min_requests",
	"circuit_breaker_failure_ratio": "fetch.circuit_breaker.failure_ratio",

	"auto_interval":               "settings.auto.interval",
	"auto_max_per_day":            "settings.auto.max_per_day",
	"auto_jitter_range":           "settings.auto.jitter_range",
	"manual_max_per_day":          "settings.manual.max_per_day",
	"manual_cooldown":             "settings.manual.cooldown",
	"manual_emergency_limit":      "settings.manual.emergency_limit",
	"emergency_max_per_week":      "settings.emergency.max_per_week",
	"emergency_requires_approval": "settings.emergency.requires_approval",

	"delegate_requests_per_second": "delegate.requests_per_second",
	"delegate_burst":               "delegate.burst",
	"delegate_user_agent":          "delegate.user_agent",

	"store_backend":       "store.backend",
	"badger_path":         "store.badger.path",
	"badger_sync_writes":  "store.badger.sync_writes",
	"badger_in_memory":    "store.badger.in_memory",
	"redis_addr":          "store.redis.addr",
	"redis_password":      "store.redis.password",
	"redis_db":            "store.redis.db",
	"redis_pool_size":     "store.redis.pool_size",
	"redis_dial_timeout":  "store.redis.dial_timeout",
	"redis_read_timeout":  "store.redis.read_timeout",
	"redis_write_timeout": "store.redis.write_timeout",

	"nats_enabled":         "nats.enabled",
	"nats_url":             "nats.url",
	"nats_embedded":        "nats.embedded",
	"nats_host":            "nats.host",
	"nats_port":            "nats.port",
	"nats_subject_prefix":  "nats.subject_prefix",
	"nats_buffer_size":     "nats.buffer_size",
	"nats_max_reconnects":  "nats.max_reconnects",
	"nats_reconnect_wait":  "nats.reconnect_wait",
	"nats_publish_timeout": "nats.publish_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable onto a koanf path. Unmapped
// variables return "" and are ignored.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	if platform, ok := strings.CutPrefix(key, tokenEnvPrefix); ok && platform != "" {
		return "delegate.tokens." + platform
	}
	return ""
}
