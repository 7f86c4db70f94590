// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package delegate provides the HTTP adapter that performs the actual network
fetch for a platform.

For each endpoint the adapter issues GET {base_url}/{endpoint}, waiting on a
per-platform token bucket first so a burst of endpoints never exceeds the
configured request rate. Responses map onto fetch error kinds:

  - 2xx: the body must be JSON and is stored under the endpoint name
  - 429: RateLimited, with Retry-After (seconds or HTTP date) when present
  - 401, 403: Fatal (credentials need attention, retrying will not help)
  - any other status >= 400, transport errors and invalid JSON: Transient

The first failing endpoint aborts the fetch; partial data is discarded.
*/
package delegate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/adfetch/internal/fetch"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/models"
)

// maxBodySize bounds one endpoint response.
const maxBodySize = 10 << 20

// maxErrorBodySize bounds how much of an error response is quoted in the message.
const maxErrorBodySize = 512

// ErrNoBaseURL is returned for a platform without base_url.
var ErrNoBaseURL = errors.New("delegate: platform has no base_url")

// Config tunes the HTTP adapter.
type Config struct {
	// RequestsPerSecond paces endpoint requests per platform. Zero disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second" json:"requests_per_second" validate:"gte=0"`
	Burst             int     `koanf:"burst" json:"burst" validate:"gte=0"`
	UserAgent         string  `koanf:"user_agent" json:"user_agent"`

	// Tokens maps platform key to a bearer token sent as Authorization.
	Tokens map[string]string `koanf:"tokens" json:"-"`
}

// DefaultConfig returns two requests per second with a burst of two.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		Burst:             2,
		UserAgent:         "adfetch/1.0",
	}
}

// Platforms looks up platform configuration. *registry.Registry satisfies it.
type Platforms interface {
	Get(key string) (models.PlatformConfig, bool)
}

// HTTP is a fetch.Delegate backed by net/http.
type HTTP struct {
	cfg       Config
	platforms Platforms
	client    *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTP creates the adapter. A nil client uses a client without its own
// timeout; the fetch manager bounds every call with the platform timeout.
func NewHTTP(cfg Config, platforms Platforms, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &HTTP{
		cfg:       cfg,
		platforms: platforms,
		client:    client,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Fetch implements fetch.Delegate.
func (h *HTTP) Fetch(ctx context.Context, platform string, endpoints []string) (*models.PlatformData, error) {
	pc, ok := h.platforms.Get(platform)
	if !ok {
		return nil, fetch.Fatal(fmt.Errorf("delegate: unknown platform %q", platform))
	}
	if pc.BaseURL == "" {
		return nil, fetch.Fatal(fmt.Errorf("%w: %s", ErrNoBaseURL, platform))
	}

	data := &models.PlatformData{
		Platform: platform,
		Records:  make(map[string]json.RawMessage, len(endpoints)),
	}
	log := logging.Ctx(ctx)
	for _, ep := range endpoints {
		if err := h.wait(ctx, platform); err != nil {
			return nil, fetch.Transient(fmt.Errorf("waiting for request budget: %w", err))
		}
		start := time.Now()
		body, err := h.get(ctx, platform, endpointURL(pc.BaseURL, ep))
		if err != nil {
			log.Debug().Err(err).Str("endpoint", ep).Msg("endpoint request failed")
			return nil, err
		}
		data.Records[ep] = body
		log.Debug().Str("endpoint", ep).Int("bytes", len(body)).Dur("duration", time.Since(start)).Msg("endpoint fetched")
	}
	data.FetchedAt = time.Now()
	return data, nil
}

func (h *HTTP) wait(ctx context.Context, platform string) error {
	if h.cfg.RequestsPerSecond <= 0 {
		return nil
	}
	return h.limiter(platform).Wait(ctx)
}

func (h *HTTP) limiter(platform string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[platform]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.cfg.RequestsPerSecond), h.cfg.Burst)
		h.limiters[platform] = l
	}
	return l
}

func (h *HTTP) get(ctx context.Context, platform, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fetch.Fatal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}
	if token := h.cfg.Tokens[platform]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fetch.Transient(fmt.Errorf("GET %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusError(resp, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fetch.Transient(fmt.Errorf("read %s: %w", url, err))
	}
	if len(body) > maxBodySize {
		return nil, fetch.Transient(fmt.Errorf("response from %s exceeds %d bytes", url, maxBodySize))
	}
	if !json.Valid(body) {
		return nil, fetch.Transient(fmt.Errorf("response from %s is not valid JSON", url))
	}
	return json.RawMessage(body), nil
}

func statusError(resp *http.Response, url string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	err := fmt.Errorf("GET %s: HTTP %d: %s", url, resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fetch.RateLimited(err, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fetch.Fatal(err)
	default:
		return fetch.Transient(err)
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Unparseable or past values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func endpointURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
