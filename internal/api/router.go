// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/adfetch/internal/middleware"
)

// NewRouter wires the handlers into a chi router.
//
// Routes:
//
//	GET   /metrics
//	GET   /api/v1/health/live
//	GET   /api/v1/health/ready
//	GET   /api/v1/status
//	GET   /api/v1/activity?limit=N
//	GET   /api/v1/platforms
//	GET   /api/v1/platforms/{platform}/can-fetch?type=manual
//	POST  /api/v1/platforms/{platform}/fetch
//	GET   /api/v1/settings
//	PATCH /api/v1/settings
//	POST  /api/v1/fetching/enable
//	POST  /api/v1/fetching/disable
//	GET   /api/v1/ws
//
//nolint:gocritic // Config is copied once
func NewRouter(h *Handler, cfg Config) http.Handler {
	mw := NewChiMiddleware(cfg)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(AccessLog())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.With(mw.RateLimitHealth()).Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitHealth())
			r.Get("/health/live", h.HealthLive)
			r.Get("/health/ready", h.HealthReady)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit())
			r.Use(APISecurityHeaders())
			r.Use(middleware.PrometheusMetrics)

			r.Get("/status", h.Status)
			r.Get("/activity", h.Activity)
			r.Get("/platforms", h.Platforms)
			r.Get("/platforms/{platform}/can-fetch", h.CanFetch)
			r.With(mw.RateLimitFetch()).Post("/platforms/{platform}/fetch", h.Fetch)
			r.Get("/settings", h.Settings)
			r.Patch("/settings", h.UpdateSettings)
			r.Get("/logging/level", h.LogLevel)
			r.Patch("/logging/level", h.SetLogLevel)
			r.Post("/fetching/enable", h.Enable)
			r.Post("/fetching/disable", h.Disable)
			r.Get("/ws", h.WebSocket)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
	return r
}
