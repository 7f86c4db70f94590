// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package metrics exposes Prometheus instrumentation for adfetch.
//
// Metrics are registered on the default registry at package init via promauto
// and served by the HTTP API at /metrics. Callers use the Record* helpers
// rather than touching the vectors directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/adfetch/internal/models"
)

var (
	// Fetch pipeline
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adfetch_fetch_attempts_total",
			Help: "Fetch attempts that reached the delegate, by outcome",
		},
		[]string{"platform", "type", "result"}, // result: success, error, rate_limited
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adfetch_fetch_duration_seconds",
			Help:    "Duration of delegate fetch calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"platform"},
	)

	FetchDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adfetch_fetch_denials_total",
			Help: "Fetches refused by the rate-limit gate",
		},
		[]string{"platform", "type", "code"},
	)

	FetchJitterSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adfetch_fetch_jitter_seconds",
			Help:    "Jitter delay applied before automatic fetches",
			Buckets: []float64{0, 60, 300, 600, 900, 1800, 2700, 3600},
		},
		[]string{"platform"},
	)

	FetchesInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adfetch_fetches_in_flight",
			Help: "Fetches currently holding a platform slot",
		},
		[]string{"platform"},
	)

	// Platform health
	PlatformStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adfetch_platform_status",
			Help: "Platform health status (0=healthy, 1=degraded, 2=error, 3=rate_limited)",
		},
		[]string{"platform"},
	)

	PlatformBackoffSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adfetch_platform_backoff_seconds",
			Help: "Current backoff duration per platform",
		},
		[]string{"platform"},
	)

	PlatformErrorRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adfetch_platform_error_rate_percent",
			Help: "Failure percentage over the last 10 attempts",
		},
		[]string{"platform"},
	)

	PlatformRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adfetch_platform_requests",
			Help: "Successful requests counted toward quotas",
		},
		[]string{"platform", "window"}, // window: hour, day
	)

	// Scheduler
	SchedulerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adfetch_scheduler_jobs_total",
			Help: "Scheduler job executions",
		},
		[]string{"job"}, // auto_fetch, hourly_reset, daily_reset, health_check, skipped
	)

	SchedulerAutoEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adfetch_scheduler_auto_enabled",
			Help: "1 when automatic fetching is enabled",
		},
	)

	// Persistence
	PersistenceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adfetch_persistence_operations_total",
			Help: "State store operations by result",
		},
		[]string{"operation", "result"}, // operation: load, save
	)

	PersistenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adfetch_persistence_duration_seconds",
			Help:    "State store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Event bus
	EventListeners = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adfetch_event_listeners",
			Help: "Registered status-change listeners",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adfetch_events_published_total",
			Help: "Status-change events published",
		},
		[]string{"type"},
	)

	EventListenerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adfetch_event_listener_panics_total",
			Help: "Listener callbacks that panicked",
		},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Fan-out
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Connected websocket clients",
		},
	)

	WebSocketDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_broadcasts_dropped_total",
			Help: "Broadcasts dropped because the hub queue was full",
		},
	)

	NATSPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_events_published_total",
			Help: "Status-change events forwarded to NATS",
		},
		[]string{"result"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordFetchAttempt records a finished delegate call.
func RecordFetchAttempt(platform string, fetchType models.FetchType, status models.AttemptStatus, duration time.Duration) {
	FetchAttemptsTotal.WithLabelValues(platform, string(fetchType), string(status)).Inc()
	FetchDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordDenial records a gate refusal.
func RecordDenial(platform string, fetchType models.FetchType, code models.DenialCode) {
	FetchDenialsTotal.WithLabelValues(platform, string(fetchType), string(code)).Inc()
}

// RecordJitter records the delay drawn for an automatic fetch.
func RecordJitter(platform string, d time.Duration) {
	FetchJitterSeconds.WithLabelValues(platform).Observe(d.Seconds())
}

// TrackInFlight moves the in-flight gauge for platform.
func TrackInFlight(platform string, inc bool) {
	if inc {
		FetchesInFlight.WithLabelValues(platform).Inc()
	} else {
		FetchesInFlight.WithLabelValues(platform).Dec()
	}
}

// StatusValue maps a health status to its gauge value.
func StatusValue(s models.HealthStatus) float64 {
	switch s {
	case models.HealthHealthy:
		return 0
	case models.HealthDegraded:
		return 1
	case models.HealthError:
		return 2
	case models.HealthRateLimited:
		return 3
	default:
		return -1
	}
}

// RecordPlatformHealth mirrors a health record into the platform gauges.
//
//nolint:gocritic // PlatformHealth is a value snapshot
func RecordPlatformHealth(h models.PlatformHealth) {
	PlatformStatus.WithLabelValues(h.Platform).Set(StatusValue(h.Status))
	PlatformBackoffSeconds.WithLabelValues(h.Platform).Set(h.CurrentBackoff.Seconds())
	PlatformErrorRate.WithLabelValues(h.Platform).Set(h.ErrorRate)
	PlatformRequests.WithLabelValues(h.Platform, "hour").Set(float64(h.RequestsThisHour))
	PlatformRequests.WithLabelValues(h.Platform, "day").Set(float64(h.RequestsToday))
}

// RecordSchedulerJob counts one scheduler job run.
func RecordSchedulerJob(job string) {
	SchedulerJobsTotal.WithLabelValues(job).Inc()
}

// SetAutoEnabled mirrors the automatic fetching switch.
func SetAutoEnabled(enabled bool) {
	if enabled {
		SchedulerAutoEnabled.Set(1)
	} else {
		SchedulerAutoEnabled.Set(0)
	}
}

// RecordPersistence records a state store load or save.
func RecordPersistence(operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	PersistenceOperations.WithLabelValues(operation, result).Inc()
	PersistenceDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventPublished counts one published event.
func RecordEventPublished(eventType string) {
	EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordNATSPublish counts one NATS forward.
func RecordNATSPublish(err error) {
	if err != nil {
		NATSPublishTotal.WithLabelValues("error").Inc()
		return
	}
	NATSPublishTotal.WithLabelValues("success").Inc()
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
