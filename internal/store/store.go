// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package store persists the fetch manager's state as one JSON document under
// one key. Backends are interchangeable behind KV: BadgerDB for a single node,
// Redis when several processes share state, and an in-memory map for tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/adfetch/internal/models"
)

// ErrNotFound is returned by Load when nothing has been saved under the key.
var ErrNotFound = errors.New("store: key not found")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store: closed")

// KV is a durable key-value store.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// SnapshotVersion is written into every snapshot.
const SnapshotVersion = 1

// Snapshot is the persisted state document.
type Snapshot struct {
	Version  int                              `json:"version"`
	SavedAt  time.Time                        `json:"saved_at"`
	Enabled  bool                             `json:"enabled"`
	Settings models.UserSettings              `json:"settings"`
	Health   map[string]models.PlatformHealth `json:"health"`
	History  []models.FetchAttempt            `json:"history"`
}

// Encode serializes s.
func Encode(s *Snapshot) ([]byte, error) {
	if s.Version == 0 {
		s.Version = SnapshotVersion
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot written by Encode.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version > SnapshotVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported version %d", s.Version)
	}
	return &s, nil
}
