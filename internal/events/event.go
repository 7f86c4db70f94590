// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package events delivers status-change notifications to in-process listeners
// and, when built with the nats tag, forwards them to a NATS subject.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/adfetch/internal/models"
)

// Type identifies what changed.
type Type string

const (
	// TypeFetchCompleted follows every attempt that reached the delegate.
	TypeFetchCompleted Type = "fetch_completed"
	// TypeHealthChanged follows a status change made by the health check.
	TypeHealthChanged Type = "health_changed"
	// TypeSettingsUpdated follows UpdateSettings.
	TypeSettingsUpdated Type = "settings_updated"
	// TypeFetchingToggled follows EnableFetching and DisableFetching.
	TypeFetchingToggled Type = "fetching_toggled"
)

// Event is one status-change notification. Only the fields relevant to Type are set.
// Listeners receive copies and may keep them.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Platform  string    `json:"platform,omitempty"`

	Attempt  *models.FetchAttempt   `json:"attempt,omitempty"`
	Health   *models.PlatformHealth `json:"health,omitempty"`
	From     models.HealthStatus    `json:"from,omitempty"`
	To       models.HealthStatus    `json:"to,omitempty"`
	Settings *models.UserSettings   `json:"settings,omitempty"`
	Enabled  *bool                  `json:"enabled,omitempty"`
}

// New returns an event of type t stamped at ts with a fresh id.
func New(t Type, ts time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, Timestamp: ts}
}
