// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package config

import (
	"net"
	"strconv"
	"time"

	"github.com/tomtom215/adfetch/internal/api"
	"github.com/tomtom215/adfetch/internal/delegate"
	"github.com/tomtom215/adfetch/internal/events"
	"github.com/tomtom215/adfetch/internal/fetch"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/models"
	"github.com/tomtom215/adfetch/internal/store"
	"github.com/tomtom215/adfetch/internal/supervisor"
	"github.com/tomtom215/adfetch/internal/websocket"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig            `koanf:"server" json:"server"`
	API        api.Config              `koanf:"api" json:"api"`
	WebSocket  websocket.Config        `koanf:"websocket" json:"websocket"`
	Fetch      fetch.Config            `koanf:"fetch" json:"fetch"`
	Settings   models.UserSettings     `koanf:"settings" json:"settings"`
	Platforms  []models.PlatformConfig `koanf:"platforms" json:"platforms" validate:"required,min=1,dive"`
	Delegate   delegate.Config         `koanf:"delegate" json:"delegate"`
	Store      store.Config            `koanf:"store" json:"store"`
	NATS       events.NATSConfig       `koanf:"nats" json:"nats"`
	Logging    LoggingConfig           `koanf:"logging" json:"logging"`
	Supervisor supervisor.TreeConfig   `koanf:"supervisor" json:"supervisor"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host" json:"host"`
	Port            int           `koanf:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" json:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" json:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" json:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" validate:"gte=0"`
}

// Addr is host:port for http.Server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggingConfig is the file/env form of logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" json:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller" json:"caller"`
}

// LoggingConfig converts to the logging package's configuration.
func (l LoggingConfig) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}

// defaultConfig is the bottom layer of Load.
func defaultConfig() *Config {
	// WriteTimeout must cover a full synchronous fetch.
	fetchCfg := fetch.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    fetchCfg.FetchTimeout + 30*time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		API:       api.DefaultConfig(),
		WebSocket: websocket.Config{AllowedOrigins: []string{}, BufferSize: 256},
		Fetch:     fetchCfg,
		Settings:  models.DefaultUserSettings(),
		Platforms: models.DefaultPlatforms(),
		Delegate:  delegate.DefaultConfig(),
		Store:     store.DefaultConfig(),
		NATS:      events.DefaultNATSConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: supervisor.DefaultTreeConfig(),
	}
}
