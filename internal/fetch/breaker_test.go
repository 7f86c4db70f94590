// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package fetch

import (
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/adfetch/internal/models"
)

func breakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Hour,
		Timeout:      time.Hour,
		MinRequests:  2,
		FailureRatio: 1,
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	d := &scriptedDelegate{script: []error{errors.New("503"), errors.New("503"), nil}}
	h := newHarness(t, d, withConfig(func(c *Config) { c.CircuitBreaker = breakerConfig() }))

	for i := 0; i < 2; i++ {
		h.pastBackoff(t, "google_ads")
		h.fetch(t, "google_ads", models.FetchAuto)
	}
	if got := h.m.breakers["google_ads"].state(); got != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", stateToString(got))
	}

	h.pastBackoff(t, "google_ads")
	res := h.fetch(t, "google_ads", models.FetchAuto)
	if res.ErrorKind != models.ErrorTransient || res.Error != ErrBreakerOpen.Error() {
		t.Errorf("result = %+v, want breaker rejection", res)
	}
	if d.Calls() != 2 {
		t.Errorf("delegate calls = %d, want 2", d.Calls())
	}

	// Other platforms have their own breaker.
	if res := h.fetch(t, "meta_ads", models.FetchAuto); !res.Success {
		t.Errorf("meta_ads = %+v", res)
	}
}

func TestBreakerIgnoresFatal(t *testing.T) {
	t.Parallel()

	b := newBreaker("fatal_test", breakerConfig())
	for i := 0; i < 5; i++ {
		_, err := b.execute(func() (*models.PlatformData, error) {
			return nil, Fatal(errors.New("bad credentials"))
		})
		if errors.Is(err, ErrBreakerOpen) {
			t.Fatalf("call %d rejected: fatal errors should not trip the breaker", i+1)
		}
	}
	if b.state() != gobreaker.StateClosed {
		t.Errorf("state = %s", stateToString(b.state()))
	}
}

func TestStateConversions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state gobreaker.State
		f     float64
		s     string
	}{
		{gobreaker.StateClosed, 0, "closed"},
		{gobreaker.StateHalfOpen, 1, "half-open"},
		{gobreaker.StateOpen, 2, "open"},
		{gobreaker.State(99), -1, "unknown"},
	}
	for _, tt := range tests {
		if got := stateToFloat(tt.state); got != tt.f {
			t.Errorf("stateToFloat(%d) = %v, want %v", tt.state, got, tt.f)
		}
		if got := stateToString(tt.state); got != tt.s {
			t.Errorf("stateToString(%d) = %q, want %q", tt.state, got, tt.s)
		}
	}
}
