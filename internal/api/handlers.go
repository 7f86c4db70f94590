// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package api

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/adfetch/internal/fetch"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/models"
	"github.com/tomtom215/adfetch/internal/validation"
	"github.com/tomtom215/adfetch/internal/websocket"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// FetchService is the part of fetch.Manager the handlers use.
type FetchService interface {
	Running() bool
	IsEnabled() bool
	Platforms() []models.PlatformConfig
	Settings() models.UserSettings
	GetStatus() models.Status
	GetRecentActivity(limit int) []models.FetchAttempt
	CanFetchData(platform string, t models.FetchType) (models.Decision, error)
	FetchPlatformData(ctx context.Context, platform string, t models.FetchType, opts fetch.FetchOptions) (models.FetchResult, error)
	UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.UserSettings, error)
	EnableFetching(ctx context.Context)
	DisableFetching(ctx context.Context)
}

// Handler serves the HTTP API.
type Handler struct {
	svc       FetchService
	hub       *websocket.Hub
	startTime time.Time
}

// NewHandler creates a Handler. hub may be nil, in which case /ws answers 503.
func NewHandler(svc FetchService, hub *websocket.Hub) *Handler {
	return &Handler{svc: svc, hub: hub, startTime: time.Now()}
}

// HealthLive always answers 200 while the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, map[string]any{
		"status":         "alive",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// HealthReady answers 503 until the scheduler loop runs.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Running() {
		respondError(w, r, http.StatusServiceUnavailable, "NOT_READY", "scheduler is not running", nil)
		return
	}
	respondOK(w, r, map[string]any{
		"status":     "ready",
		"is_enabled": h.svc.IsEnabled(),
	})
}

// Status returns the dashboard snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, h.svc.GetStatus())
}

// Activity returns recent attempts, newest first.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxActivityLimit {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer between 1 and 100", nil)
			return
		}
		limit = n
	}
	respondOK(w, r, h.svc.GetRecentActivity(limit))
}

// Platforms lists the configured platforms.
func (h *Handler) Platforms(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, h.svc.Platforms())
}

// Settings returns the current user settings.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, h.svc.Settings())
}

// CanFetch evaluates the gate without side effects. The type query parameter
// defaults to manual.
func (h *Handler) CanFetch(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	t := models.FetchManual
	if s := r.URL.Query().Get("type"); s != "" {
		parsed, err := models.ParseFetchType(s)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "type must be auto, manual or emergency", err)
			return
		}
		t = parsed
	}
	d, err := h.svc.CanFetchData(platform, t)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
		return
	}
	respondOK(w, r, d)
}

// Fetch triggers a manual or emergency fetch and waits for its result.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")

	var req fetchRequest
	if !readBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondJSON(w, http.StatusBadRequest, &Response{
			Error: &APIError{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details},
			Meta:  meta(r),
		})
		return
	}

	// The attempt is recorded either way, so a disconnecting client must not
	// abort it midway.
	ctx := context.WithoutCancel(r.Context())
	res, err := h.svc.FetchPlatformData(ctx, platform, models.FetchType(req.Type), fetch.FetchOptions{
		Endpoints: req.Endpoints,
		Approved:  req.Approved,
	})
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
		return
	}

	switch {
	case res.Success:
		respondOK(w, r, res)
	case res.Denied && res.Code == models.DenialUnknownPlatform:
		respondJSON(w, http.StatusNotFound, &Response{
			Data:  res,
			Error: &APIError{Code: "PLATFORM_NOT_FOUND", Message: res.Reason},
			Meta:  meta(r),
		})
	case res.Denied:
		if s := retryAfterSeconds(res.NextAllowed, time.Now()); s > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(s))
		}
		respondJSON(w, http.StatusTooManyRequests, &Response{
			Data:  res,
			Error: &APIError{Code: "FETCH_DENIED", Message: res.Reason, Details: map[string]any{"denial": res.Code}},
			Meta:  meta(r),
		})
	default:
		logging.Ctx(r.Context()).Warn().Str("platform", platform).Str("error", sanitizeLogValue(res.Error)).Msg("fetch failed")
		respondJSON(w, http.StatusBadGateway, &Response{
			Data:  res,
			Error: &APIError{Code: "FETCH_FAILED", Message: res.Error, Details: map[string]any{"kind": res.ErrorKind}},
			Meta:  meta(r),
		})
	}
}

// UpdateSettings applies a partial settings update.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !readBody(w, r, &req) {
		return
	}
	updated, err := h.svc.UpdateSettings(r.Context(), req.patch())
	if err != nil {
		if errors.Is(err, fetch.ErrInvalidSettings) {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to update settings", err)
		return
	}
	respondOK(w, r, updated)
}

// LogLevel reports the current log level.
func (h *Handler) LogLevel(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, map[string]string{"level": logging.Level()})
}

// SetLogLevel changes the log level without a restart.
func (h *Handler) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req logLevelRequest
	if !readBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondJSON(w, http.StatusBadRequest, &Response{
			Error: &APIError{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details},
			Meta:  meta(r),
		})
		return
	}
	prev := logging.Level()
	if err := logging.SetLevelString(req.Level); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("from", prev).Str("to", req.Level).Msg("log level changed")
	respondOK(w, r, map[string]string{"level": logging.Level()})
}

// Enable turns automatic fetching on.
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	h.svc.EnableFetching(r.Context())
	respondOK(w, r, map[string]bool{"is_enabled": h.svc.IsEnabled()})
}

// Disable turns automatic fetching off.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	h.svc.DisableFetching(r.Context())
	respondOK(w, r, map[string]bool{"is_enabled": h.svc.IsEnabled()})
}

// WebSocket upgrades to the status event stream.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "websocket hub is not running", nil)
		return
	}
	h.hub.ServeWS(w, r)
}

func readBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", err)
			return false
		}
		respondError(w, r, http.StatusBadRequest, "INVALID_BODY", "failed to read request body", err)
		return false
	}
	if err := decodeBody(body, dst); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_BODY", err.Error(), err)
		return false
	}
	return true
}

// retryAfterSeconds rounds up so clients never retry early. Zero means unknown.
func retryAfterSeconds(next, now time.Time) int {
	if next.IsZero() || !next.After(now) {
		return 0
	}
	return int(math.Ceil(next.Sub(now).Seconds()))
}
