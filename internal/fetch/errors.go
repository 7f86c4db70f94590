// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/adfetch/internal/models"
)

var (
	// ErrInvalidFetchType is returned for a fetch type other than auto, manual or emergency.
	ErrInvalidFetchType = errors.New("fetch: invalid fetch type")
	// ErrInvalidSettings wraps validation failures from UpdateSettings.
	ErrInvalidSettings = errors.New("fetch: invalid settings")
	// ErrBreakerOpen is the failure recorded when a platform's circuit breaker rejects a call.
	ErrBreakerOpen = errors.New("circuit breaker open")
	// ErrFetchTimeout is the failure recorded when a delegate call exceeds its timeout.
	ErrFetchTimeout = errors.New("fetch timed out")
)

// Error is a classified delegate failure. Delegates return it to control how
// the failure is backed off; untyped errors are treated as transient.
type Error struct {
	Kind models.ErrorKind
	// RetryAfter is the remote server's requested wait, if it sent one.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RateLimited marks err as a remote throttling response.
func RateLimited(err error, retryAfter time.Duration) *Error {
	return &Error{Kind: models.ErrorRateLimited, RetryAfter: retryAfter, Err: err}
}

// Transient marks err as retryable.
func Transient(err error) *Error {
	return &Error{Kind: models.ErrorTransient, Err: err}
}

// Fatal marks err as not retryable without operator action.
func Fatal(err error) *Error {
	return &Error{Kind: models.ErrorFatal, Err: err}
}

// Classify returns the kind and Retry-After hint for a delegate error.
//
// A typed *Error wins. Otherwise an error whose text mentions "rate limit" is
// treated as RateLimited for delegates that cannot build typed errors, and
// everything else is Transient.
func Classify(err error) (models.ErrorKind, time.Duration) {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != "" {
		return fe.Kind, fe.RetryAfter
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorTransient, 0
	}
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return models.ErrorRateLimited, 0
	}
	return models.ErrorTransient, 0
}

func timeoutError(d time.Duration) error {
	return Transient(fmt.Errorf("%w after %s", ErrFetchTimeout, d))
}
