// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package api

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/adfetch/internal/logging"
)

// Config holds HTTP surface settings.
type Config struct {
	CORSOrigins       []string      `koanf:"cors_origins" json:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" json:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" json:"rate_limit_window" validate:"gte=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled" json:"rate_limit_disabled"`

	// FetchRateLimitRequests applies to POST .../fetch on top of the general limit.
	FetchRateLimitRequests int `koanf:"fetch_rate_limit_requests" json:"fetch_rate_limit_requests" validate:"gte=0"`
}

// DefaultConfig returns 100 requests per minute per IP, 10 fetch triggers per
// minute, and no CORS origins.
func DefaultConfig() Config {
	return Config{
		CORSOrigins:            []string{},
		RateLimitRequests:      100,
		RateLimitWindow:        time.Minute,
		FetchRateLimitRequests: 10,
	}
}

// ChiMiddleware builds the middleware chain from Config.
type ChiMiddleware struct {
	config Config
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates the middleware factory.
//
//nolint:gocritic // Config is copied once
func NewChiMiddleware(config Config) *ChiMiddleware {
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = time.Minute
	}
	return &ChiMiddleware{
		config: config,
		cors: cors.Handler(cors.Options{
			AllowedOrigins:   config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           86400,
		}),
	}
}

// CORS returns the go-chi/cors handler.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit limits requests per client IP.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.limit(m.config.RateLimitRequests)
}

// RateLimitFetch is the stricter limit for fetch triggers.
func (m *ChiMiddleware) RateLimitFetch() func(http.Handler) http.Handler {
	return m.limit(m.config.FetchRateLimitRequests)
}

// RateLimitHealth allows frequent probes while still bounding abuse.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.limit(1000)
}

func (m *ChiMiddleware) limit(requests int) func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled || requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
		}),
	)
}

// APISecurityHeaders adds headers appropriate for JSON API responses.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog writes one structured line per request at debug level, or warn
// for server errors.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log := logging.Ctx(r.Context())
			ev := log.Debug()
			if status >= http.StatusInternalServerError {
				ev = log.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("http request")
		})
	}
}
