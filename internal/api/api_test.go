// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adfetch/internal/fetch"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/models"
	"github.com/tomtom215/adfetch/internal/registry"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    Meta            `json:"meta"`
}

func newTestManager(t *testing.T, delegate fetch.Delegate, cfg fetch.Config) *fetch.Manager {
	t.Helper()
	reg, err := registry.New(models.DefaultPlatforms(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	m, err := fetch.New(cfg, reg, delegate)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func okDelegate() fetch.Delegate {
	return fetch.DelegateFunc(func(_ context.Context, platform string, endpoints []string) (*models.PlatformData, error) {
		records := make(map[string]json.RawMessage, len(endpoints))
		for _, ep := range endpoints {
			records[ep] = json.RawMessage(`[]`)
		}
		return &models.PlatformData{Platform: platform, FetchedAt: time.Now(), Records: records}, nil
	})
}

func newTestRouter(t *testing.T, delegate fetch.Delegate) (http.Handler, *fetch.Manager) {
	t.Helper()
	m := newTestManager(t, delegate, fetch.DefaultConfig())
	cfg := DefaultConfig()
	cfg.RateLimitDisabled = true
	return NewRouter(NewHandler(m, nil), cfg), m
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: invalid envelope: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func TestHealthLive(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, okDelegate())
	rec, env := do(t, h, http.MethodGet, "/api/v1/health/live", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, env = %+v", rec.Code, env)
	}
	if env.Meta.RequestID == "" || rec.Header().Get("X-Request-ID") != env.Meta.RequestID {
		t.Errorf("request id header %q, meta %q", rec.Header().Get("X-Request-ID"), env.Meta.RequestID)
	}
}

func TestHealthReady(t *testing.T) {
	t.Parallel()

	cfg := fetch.DefaultConfig()
	cfg.EnabledOnStart = false
	cfg.RestoreEnabled = false
	m := newTestManager(t, okDelegate(), cfg)
	h := NewRouter(NewHandler(m, nil), DefaultConfig())

	rec, env := do(t, h, http.MethodGet, "/api/v1/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != "NOT_READY" {
		t.Fatalf("before start: status = %d, env = %+v", rec.Code, env)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Stop() })

	rec, _ = do(t, h, http.MethodGet, "/api/v1/health/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("after start: status = %d", rec.Code)
	}
}

func TestStatusAndPlatforms(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, okDelegate())

	rec, env := do(t, h, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var st models.Status
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if !st.IsEnabled || len(st.Platforms) != len(models.DefaultPlatforms()) {
		t.Errorf("status = %+v", st)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on /api/v1")
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/platforms", "")
	var platforms []models.PlatformConfig
	if err := json.Unmarshal(env.Data, &platforms); err != nil {
		t.Fatal(err)
	}
	if len(platforms) != len(models.DefaultPlatforms()) {
		t.Errorf("platforms = %d", len(platforms))
	}
}

func TestFetchOutcomes(t *testing.T) {
	t.Parallel()

	delegate := fetch.DelegateFunc(func(ctx context.Context, platform string, endpoints []string) (*models.PlatformData, error) {
		if platform == "meta_ads" {
			return nil, fetch.Transient(errors.New("upstream 503"))
		}
		return okDelegate().Fetch(ctx, platform, endpoints)
	})
	h, _ := newTestRouter(t, delegate)

	rec, env := do(t, h, http.MethodPost, "/api/v1/platforms/google_ads/fetch", `{"type":"manual"}`)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("success: status = %d, env = %+v", rec.Code, env)
	}
	var res models.FetchResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Attempt == nil || res.Attempt.Status != models.AttemptSuccess {
		t.Errorf("result = %+v", res)
	}

	// Second manual fetch inside the cooldown.
	rec, env = do(t, h, http.MethodPost, "/api/v1/platforms/google_ads/fetch", `{"type":"manual"}`)
	if rec.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != "FETCH_DENIED" {
		t.Fatalf("cooldown: status = %d, env = %+v", rec.Code, env)
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs <= 0 || secs > 3600 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}

	rec, env = do(t, h, http.MethodPost, "/api/v1/platforms/meta_ads/fetch", `{"type":"manual"}`)
	if rec.Code != http.StatusBadGateway || env.Error == nil || env.Error.Code != "FETCH_FAILED" {
		t.Fatalf("failure: status = %d, env = %+v", rec.Code, env)
	}
	if !strings.Contains(env.Error.Message, "upstream 503") {
		t.Errorf("message = %q", env.Error.Message)
	}

	rec, env = do(t, h, http.MethodPost, "/api/v1/platforms/myspace_ads/fetch", `{"type":"manual"}`)
	if rec.Code != http.StatusNotFound || env.Error.Code != "PLATFORM_NOT_FOUND" {
		t.Errorf("unknown: status = %d, env = %+v", rec.Code, env)
	}
}

func TestFetchRejectsBadBodies(t *testing.T) {
	t.Parallel()

	h, m := newTestRouter(t, okDelegate())

	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty", "", "INVALID_BODY"},
		{"malformed", `{"type":`, "INVALID_BODY"},
		{"unknown field", `{"type":"manual","force":true}`, "INVALID_BODY"},
		{"auto not allowed", `{"type":"auto"}`, "VALIDATION_ERROR"},
		{"missing type", `{"endpoints":["campaigns"]}`, "VALIDATION_ERROR"},
		{"blank endpoint", `{"type":"manual","endpoints":[""]}`, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		rec, env := do(t, h, http.MethodPost, "/api/v1/platforms/google_ads/fetch", tt.body)
		if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != tt.code {
			t.Errorf("%s: status = %d, env = %+v", tt.name, rec.Code, env)
		}
	}
	if n := len(m.GetRecentActivity(100)); n != 0 {
		t.Errorf("rejected requests logged %d attempts", n)
	}
}

func TestEmergencyApprovalOverHTTP(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, okDelegate())

	rec, _ := do(t, h, http.MethodPatch, "/api/v1/settings", `{"emergency":{"requires_approval":true}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rec.Code)
	}

	rec, env := do(t, h, http.MethodPost, "/api/v1/platforms/tiktok_ads/fetch", `{"type":"emergency"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unapproved: status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "" {
		t.Error("approval denial has no resume time")
	}
	if env.Error.Details["denial"] != string(models.DenialApprovalRequired) {
		t.Errorf("details = %v", env.Error.Details)
	}

	rec, _ = do(t, h, http.MethodPost, "/api/v1/platforms/tiktok_ads/fetch", `{"type":"emergency","approved":true}`)
	if rec.Code != http.StatusOK {
		t.Errorf("approved: status = %d", rec.Code)
	}
}

func TestCanFetch(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, okDelegate())

	rec, env := do(t, h, http.MethodGet, "/api/v1/platforms/google_ads/can-fetch", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var d models.Decision
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Errorf("decision = %+v", d)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/platforms/nope/can-fetch?type=auto", "")
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Code != models.DenialUnknownPlatform {
		t.Errorf("unknown platform decision = %+v", d)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/v1/platforms/google_ads/can-fetch?type=urgent", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad type: status = %d", rec.Code)
	}
}

func TestActivityLimit(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, okDelegate())
	for _, p := range []string{"google_ads", "meta_ads", "tiktok_ads"} {
		if rec, _ := do(t, h, http.MethodPost, "/api/v1/platforms/"+p+"/fetch", `{"type":"manual"}`); rec.Code != http.StatusOK {
			t.Fatalf("fetch %s: %d", p, rec.Code)
		}
	}

	_, env := do(t, h, http.MethodGet, "/api/v1/activity?limit=2", "")
	var attempts []models.FetchAttempt
	if err := json.Unmarshal(env.Data, &attempts); err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 2 || attempts[0].Platform != "tiktok_ads" {
		t.Errorf("activity = %+v", attempts)
	}

	for _, q := range []string{"0", "101", "ten"} {
		if rec, _ := do(t, h, http.MethodGet, "/api/v1/activity?limit="+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d", q, rec.Code)
		}
	}
}

func TestUpdateSettings(t *testing.T) {
	t.Parallel()

	h, m := newTestRouter(t, okDelegate())

	rec, env := do(t, h, http.MethodPatch, "/api/v1/settings", `{"manual":{"cooldown":"90m","max_per_day":4},"auto":{"jitter_range":60000000000}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, env = %+v", rec.Code, env)
	}
	s := m.Settings()
	if s.Manual.Cooldown != 90*time.Minute || s.Manual.MaxPerDay != 4 || s.Auto.JitterRange != time.Minute {
		t.Errorf("settings = %+v", s)
	}

	tests := []struct {
		name string
		body string
	}{
		{"interval below minimum", `{"auto":{"interval":"30s"}}`},
		{"negative cap", `{"manual":{"max_per_day":-1}}`},
		{"bad duration", `{"manual":{"cooldown":"soon"}}`},
		{"unknown section", `{"turbo":{}}`},
	}
	for _, tt := range tests {
		if rec, _ := do(t, h, http.MethodPatch, "/api/v1/settings", tt.body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", tt.name, rec.Code)
		}
	}
	if m.Settings() != s {
		t.Error("rejected patch changed settings")
	}
}

// Changes the process-wide level, so not parallel.
func TestLogLevelRoute(t *testing.T) {
	h, _ := newTestRouter(t, okDelegate())
	t.Cleanup(func() { _ = logging.SetLevelString("info") })

	level := func(env envelope) string {
		t.Helper()
		var got map[string]string
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatal(err)
		}
		return got["level"]
	}

	rec, env := do(t, h, http.MethodGet, "/api/v1/logging/level", "")
	if rec.Code != http.StatusOK || level(env) != "info" {
		t.Fatalf("GET: status = %d, env = %+v", rec.Code, env)
	}

	rec, env = do(t, h, http.MethodPatch, "/api/v1/logging/level", `{"level":"debug"}`)
	if rec.Code != http.StatusOK || level(env) != "debug" {
		t.Fatalf("PATCH: status = %d, env = %+v", rec.Code, env)
	}
	if logging.Level() != "debug" {
		t.Errorf("global level = %s", logging.Level())
	}

	for _, body := range []string{`{"level":"loud"}`, `{"level":"fatal"}`, `{}`, `{"verbosity":"debug"}`} {
		if rec, _ := do(t, h, http.MethodPatch, "/api/v1/logging/level", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, rec.Code)
		}
	}
	if logging.Level() != "debug" {
		t.Errorf("rejected request changed the level to %s", logging.Level())
	}
}

func TestEnableDisable(t *testing.T) {
	t.Parallel()

	h, m := newTestRouter(t, okDelegate())

	if rec, _ := do(t, h, http.MethodPost, "/api/v1/fetching/disable", ""); rec.Code != http.StatusOK {
		t.Fatalf("disable: %d", rec.Code)
	}
	if m.IsEnabled() {
		t.Fatal("still enabled")
	}
	rec, env := do(t, h, http.MethodPost, "/api/v1/platforms/google_ads/fetch", `{"type":"manual"}`)
	if rec.Code != http.StatusTooManyRequests || env.Error.Details["denial"] != string(models.DenialDisabled) {
		t.Errorf("fetch while disabled: status = %d, env = %+v", rec.Code, env)
	}

	if rec, _ := do(t, h, http.MethodPost, "/api/v1/fetching/enable", ""); rec.Code != http.StatusOK {
		t.Fatalf("enable: %d", rec.Code)
	}
	if !m.IsEnabled() {
		t.Error("not enabled")
	}
}

func TestWebSocketWithoutHub(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, okDelegate())
	if rec, _ := do(t, h, http.MethodGet, "/api/v1/ws", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, okDelegate())
	if rec, env := do(t, h, http.MethodGet, "/api/v2/status", ""); rec.Code != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Errorf("not found: %d %+v", rec.Code, env)
	}
	if rec, _ := do(t, h, http.MethodDelete, "/api/v1/settings", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("method: %d", rec.Code)
	}
}

func TestFetchRateLimit(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, okDelegate(), fetch.DefaultConfig())
	cfg := DefaultConfig()
	cfg.FetchRateLimitRequests = 2
	h := NewRouter(NewHandler(m, nil), cfg)

	var last *httptest.ResponseRecorder
	var env envelope
	for i := 0; i < 3; i++ {
		last, env = do(t, h, http.MethodPost, "/api/v1/platforms/google_ads/fetch", `{"type":"emergency"}`)
	}
	if last.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Errorf("third request: status = %d, env = %+v", last.Code, env)
	}

	// Other routes keep working.
	if rec, _ := do(t, h, http.MethodGet, "/api/v1/status", ""); rec.Code != http.StatusOK {
		t.Errorf("status after fetch limit: %d", rec.Code)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{`"4h"`, 4 * time.Hour, false},
		{`"1h30m"`, 90 * time.Minute, false},
		{`3600000000000`, time.Hour, false},
		{`"tomorrow"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		var d Duration
		err := json.Unmarshal([]byte(tt.in), &d)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && time.Duration(d) != tt.want {
			t.Errorf("%s: got %v, want %v", tt.in, time.Duration(d), tt.want)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		next time.Time
		want int
	}{
		{time.Time{}, 0},
		{now.Add(-time.Second), 0},
		{now.Add(1500 * time.Millisecond), 2},
		{now.Add(time.Hour), 3600},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.next, now); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.next, got, tt.want)
		}
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()

	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("got %q", got)
	}
}
