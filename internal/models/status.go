// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// PlatformData is what a delegate returns for one fetch: raw payloads keyed by endpoint.
type PlatformData struct {
	Platform  string                     `json:"platform"`
	FetchedAt time.Time                  `json:"fetched_at"`
	Records   map[string]json.RawMessage `json:"records"`
}

// Size is the total payload size in bytes.
func (d *PlatformData) Size() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, r := range d.Records {
		n += len(r)
	}
	return n
}

// FetchResult is returned by every fetch call. Exactly one of the three shapes holds:
// success (Success, Data), denial (Denied, Decision fields) or failure (Error).
type FetchResult struct {
	Success     bool          `json:"success"`
	Denied      bool          `json:"denied,omitempty"`
	Data        *PlatformData `json:"data,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	Code        DenialCode    `json:"code,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	NextAllowed time.Time     `json:"next_allowed"`
	Attempt     *FetchAttempt `json:"attempt,omitempty"`
}

// Stats summarizes the attempt log.
type Stats struct {
	TotalFetches    int           `json:"total_fetches"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// Status is the polling snapshot for dashboards.
type Status struct {
	IsEnabled bool                      `json:"is_enabled"`
	Platforms map[string]PlatformHealth `json:"platforms"`
	Settings  UserSettings              `json:"settings"`
	Stats     Stats                     `json:"stats"`
}
