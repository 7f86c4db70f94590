// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package services

import (
	"context"
	"fmt"
)

// StartStopper matches *fetch.Manager: Start restores state and launches the
// scheduler loop, Stop ends it and writes the final snapshot.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// FetchManagerService adapts the fetch manager's Start/Stop lifecycle to
// suture's Serve. A restart by the supervisor re-runs Start, which restores
// the last persisted snapshot.
type FetchManagerService struct {
	manager StartStopper
}

// NewFetchManagerService wraps manager.
func NewFetchManagerService(manager StartStopper) *FetchManagerService {
	return &FetchManagerService{manager: manager}
}

// Serve implements suture.Service.
func (s *FetchManagerService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("fetch manager start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("fetch manager stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *FetchManagerService) String() string {
	return "fetch-manager"
}
