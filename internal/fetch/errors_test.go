// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/adfetch/internal/models"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantKind  models.ErrorKind
		wantAfter time.Duration
	}{
		{"typed rate limit", RateLimited(errors.New("429"), time.Minute), models.ErrorRateLimited, time.Minute},
		{"wrapped typed", fmt.Errorf("google: %w", Fatal(errors.New("token revoked"))), models.ErrorFatal, 0},
		{"typed transient", Transient(errors.New("502")), models.ErrorTransient, 0},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), models.ErrorTransient, 0},
		{"rate limit text", errors.New("Rate limit exceeded"), models.ErrorRateLimited, 0},
		{"quota text", errors.New("User rate limit reached for project"), models.ErrorRateLimited, 0},
		{"plain", errors.New("connection refused"), models.ErrorTransient, 0},
		{"empty kind falls through", &Error{Err: errors.New("rate limit")}, models.ErrorRateLimited, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			kind, after := Classify(tt.err)
			if kind != tt.wantKind || after != tt.wantAfter {
				t.Errorf("Classify(%v) = %s, %v; want %s, %v", tt.err, kind, after, tt.wantKind, tt.wantAfter)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := Transient(base)
	if !errors.Is(err, base) {
		t.Error("Transient does not unwrap to its cause")
	}
	if err.Error() != "boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if (&Error{Kind: models.ErrorFatal}).Error() != "fatal" {
		t.Error("nil cause should print the kind")
	}

	te := timeoutError(5 * time.Second)
	if !errors.Is(te, ErrFetchTimeout) {
		t.Error("timeout error does not wrap ErrFetchTimeout")
	}
	if kind, _ := Classify(te); kind != models.ErrorTransient {
		t.Errorf("timeout kind = %s", kind)
	}
}
