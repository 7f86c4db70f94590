// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package api

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adfetch/internal/models"
)

// maxBodySize bounds request bodies.
const maxBodySize = 64 << 10

// Duration accepts either a Go duration string ("4h", "90m") or integer nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"4h\" or integer nanoseconds")
	}
	*d = Duration(n)
	return nil
}

func (d *Duration) ptr() *time.Duration {
	if d == nil {
		return nil
	}
	v := time.Duration(*d)
	return &v
}

// fetchRequest is the body of POST /platforms/{platform}/fetch. Auto fetches
// are owned by the scheduler and cannot be triggered here.
type fetchRequest struct {
	Type      string   `json:"type" validate:"required,oneof=manual emergency"`
	Endpoints []string `json:"endpoints" validate:"max=32,dive,required,max=128"`
	Approved  bool     `json:"approved"`
}

// logLevelRequest is the body of PATCH /logging/level.
type logLevelRequest struct {
	Level string `json:"level" validate:"required,oneof=trace debug info warn error"`
}

// settingsRequest is the body of PATCH /settings.
type settingsRequest struct {
	Auto *struct {
		Interval    *Duration `json:"interval"`
		MaxPerDay   *int      `json:"max_per_day"`
		JitterRange *Duration `json:"jitter_range"`
	} `json:"auto"`
	Manual *struct {
		MaxPerDay      *int      `json:"max_per_day"`
		Cooldown       *Duration `json:"cooldown"`
		EmergencyLimit *int      `json:"emergency_limit"`
	} `json:"manual"`
	Emergency *struct {
		MaxPerWeek       *int  `json:"max_per_week"`
		RequiresApproval *bool `json:"requires_approval"`
	} `json:"emergency"`
}

func (s *settingsRequest) patch() models.SettingsPatch {
	var p models.SettingsPatch
	if a := s.Auto; a != nil {
		p.Auto = &models.AutoPatch{Interval: a.Interval.ptr(), MaxPerDay: a.MaxPerDay, JitterRange: a.JitterRange.ptr()}
	}
	if m := s.Manual; m != nil {
		p.Manual = &models.ManualPatch{MaxPerDay: m.MaxPerDay, Cooldown: m.Cooldown.ptr(), EmergencyLimit: m.EmergencyLimit}
	}
	if e := s.Emergency; e != nil {
		p.Emergency = &models.EmergencyPatch{MaxPerWeek: e.MaxPerWeek, RequiresApproval: e.RequiresApproval}
	}
	return p
}

func decodeBody(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
