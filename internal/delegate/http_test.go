// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package delegate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/adfetch/internal/fetch"
	"github.com/tomtom215/adfetch/internal/models"
)

type platformTable map[string]models.PlatformConfig

func (p platformTable) Get(key string) (models.PlatformConfig, bool) {
	c, ok := p[key]
	return c, ok
}

func newTestDelegate(t *testing.T, handler http.HandlerFunc, cfg Config) *HTTP {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	platforms := platformTable{
		"google_ads": {Key: "google_ads", BaseURL: srv.URL + "/v1/"},
		"no_url":     {Key: "no_url"},
	}
	return NewHTTP(cfg, platforms, srv.Client())
}

func TestFetchCollectsEndpoints(t *testing.T) {
	t.Parallel()

	var auth, agent atomic.Value
	d := newTestDelegate(t, func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		agent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}, Config{UserAgent: "adfetch-test", Tokens: map[string]string{"google_ads": "secret"}})

	data, err := d.Fetch(context.Background(), "google_ads", []string{"campaigns", "/metrics"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := string(data.Records["campaigns"]); got != `{"path":"/v1/campaigns"}` {
		t.Errorf("campaigns = %s", got)
	}
	if got := string(data.Records["/metrics"]); got != `{"path":"/v1/metrics"}` {
		t.Errorf("metrics = %s", got)
	}
	if data.Platform != "google_ads" || data.FetchedAt.IsZero() {
		t.Errorf("data = %+v", data)
	}
	if auth.Load() != "Bearer secret" || agent.Load() != "adfetch-test" {
		t.Errorf("headers: auth=%v agent=%v", auth.Load(), agent.Load())
	}
}

func TestFetchStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		header     string
		body       string
		wantKind   models.ErrorKind
		wantRetry  time.Duration
		wantInText string
	}{
		{"too many requests", http.StatusTooManyRequests, "120", "slow down", models.ErrorRateLimited, 2 * time.Minute, "HTTP 429"},
		{"too many without header", http.StatusTooManyRequests, "", "", models.ErrorRateLimited, 0, "HTTP 429"},
		{"unauthorized", http.StatusUnauthorized, "", "bad token", models.ErrorFatal, 0, "bad token"},
		{"forbidden", http.StatusForbidden, "", "", models.ErrorFatal, 0, "HTTP 403"},
		{"server error", http.StatusBadGateway, "", "upstream", models.ErrorTransient, 0, "HTTP 502"},
		{"not found", http.StatusNotFound, "", "", models.ErrorTransient, 0, "HTTP 404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newTestDelegate(t, func(w http.ResponseWriter, _ *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, Config{})

			_, err := d.Fetch(context.Background(), "google_ads", []string{"campaigns"})
			var fe *fetch.Error
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *fetch.Error", err)
			}
			if fe.Kind != tt.wantKind || fe.RetryAfter != tt.wantRetry {
				t.Errorf("kind=%s retry=%v, want %s %v", fe.Kind, fe.RetryAfter, tt.wantKind, tt.wantRetry)
			}
			if !strings.Contains(err.Error(), tt.wantInText) {
				t.Errorf("message %q does not contain %q", err.Error(), tt.wantInText)
			}
		})
	}
}

func TestFetchInvalidJSON(t *testing.T) {
	t.Parallel()

	d := newTestDelegate(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}, Config{})

	_, err := d.Fetch(context.Background(), "google_ads", []string{"campaigns"})
	if kind, _ := fetch.Classify(err); kind != models.ErrorTransient || err == nil {
		t.Errorf("err = %v (%s), want transient", err, kind)
	}
}

func TestFetchStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	d := newTestDelegate(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if strings.HasSuffix(r.URL.Path, "/broken") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}, Config{})

	if _, err := d.Fetch(context.Background(), "google_ads", []string{"ok", "broken", "never"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 2 {
		t.Errorf("requests = %d, want 2", calls.Load())
	}
}

func TestFetchConfigurationErrors(t *testing.T) {
	t.Parallel()

	d := newTestDelegate(t, func(http.ResponseWriter, *http.Request) {}, Config{})

	_, err := d.Fetch(context.Background(), "no_url", []string{"x"})
	if !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("no base url: err = %v", err)
	}
	if kind, _ := fetch.Classify(err); kind != models.ErrorFatal {
		t.Errorf("no base url kind = %s", kind)
	}

	_, err = d.Fetch(context.Background(), "bing_ads", []string{"x"})
	if kind, _ := fetch.Classify(err); kind != models.ErrorFatal {
		t.Errorf("unknown platform kind = %s", kind)
	}
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	d := newTestDelegate(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, Config{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Fetch(ctx, "google_ads", []string{"campaigns"})
	if kind, _ := fetch.Classify(err); err == nil || kind != models.ErrorTransient {
		t.Errorf("err = %v (%s)", err, kind)
	}
}

func TestPacing(t *testing.T) {
	t.Parallel()

	d := newTestDelegate(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, Config{RequestsPerSecond: 20, Burst: 1})

	start := time.Now()
	if _, err := d.Fetch(context.Background(), "google_ads", []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	// Burst 1 at 20/s: the second and third requests each wait ~50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("three requests took %v, want pacing", elapsed)
	}
	if d.limiter("google_ads") != d.limiter("google_ads") {
		t.Error("limiter not reused per platform")
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{" 5 ", 5 * time.Second},
		{"-1", 0},
		{"Tue, 10 Mar 2026 12:10:00 GMT", 10 * time.Minute},
		{"Tue, 10 Mar 2026 11:00:00 GMT", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEndpointURL(t *testing.T) {
	t.Parallel()

	if got := endpointURL("https://api.example.com/v2/", "/campaigns"); got != "https://api.example.com/v2/campaigns" {
		t.Errorf("endpointURL = %s", got)
	}
}
