// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/adfetch/internal/clock"
	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/metrics"
	"github.com/tomtom215/adfetch/internal/models"
	"github.com/tomtom215/adfetch/internal/store"
	"github.com/tomtom215/adfetch/internal/validation"
)

// snapshot captures the persisted state.
func (m *Manager) snapshot() *store.Snapshot {
	m.mu.RLock()
	enabled, settings := m.enabled, m.settings
	m.mu.RUnlock()

	return &store.Snapshot{
		Version:  store.SnapshotVersion,
		SavedAt:  m.now(),
		Enabled:  enabled,
		Settings: settings,
		Health:   m.tracker.Snapshot(),
		History:  m.history.All(),
	}
}

// persist writes the snapshot. Failures are logged and counted, never returned:
// a broken store must not fail a fetch.
func (m *Manager) persist(ctx context.Context) {
	if m.kv == nil {
		return
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.PersistTimeout)
	defer cancel()

	start := time.Now()
	err := m.save(ctx)
	metrics.RecordPersistence("save", time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", m.cfg.StateKey).Msg("persist fetch state")
	}
}

func (m *Manager) save(ctx context.Context) error {
	data, err := store.Encode(m.snapshot())
	if err != nil {
		return err
	}
	return m.kv.Save(ctx, m.cfg.StateKey, data)
}

// Restore loads the persisted snapshot once. A missing snapshot is not an error.
//
// The attempt log refills the ring, health is restored for platforms that are
// still configured, and settings are taken if they validate. Counters from an
// earlier hour or day are zeroed, and attempts left pending by a crash are
// closed as errors.
func (m *Manager) Restore(ctx context.Context) error {
	if m.kv == nil {
		return nil
	}

	start := time.Now()
	data, err := m.kv.Load(ctx, m.cfg.StateKey)
	if errors.Is(err, store.ErrNotFound) {
		metrics.RecordPersistence("load", time.Since(start), nil)
		logging.Info().Str("key", m.cfg.StateKey).Msg("no saved fetch state")
		return nil
	}
	if err == nil {
		var snap *store.Snapshot
		snap, err = store.Decode(data)
		if err == nil {
			m.apply(snap)
		}
	}
	metrics.RecordPersistence("load", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("restore fetch state: %w", err)
	}
	return nil
}

func (m *Manager) apply(snap *store.Snapshot) {
	now := m.now()

	attempts := snap.History
	for i := range attempts {
		if !attempts[i].Status.Terminal() {
			attempts[i].Status = models.AttemptAbandoned
			attempts[i].ErrorMessage = "interrupted by restart"
		}
	}
	m.history.Restore(attempts)

	staleHour := !clock.NextHour(snap.SavedAt).After(now)
	staleDay := !clock.NextMidnight(snap.SavedAt).After(now)
	saved := make(map[string]models.PlatformHealth, len(snap.Health))
	for k, h := range snap.Health {
		if staleHour {
			h.RequestsThisHour = 0
		}
		if staleDay {
			h.RequestsToday = 0
		}
		saved[k] = h
	}
	restored := m.tracker.Restore(saved)

	m.mu.Lock()
	if verr := validation.ValidateStruct(&snap.Settings); verr == nil {
		m.settings = snap.Settings
	} else {
		logging.Warn().Err(verr).Msg("saved settings invalid, keeping configured settings")
	}
	if m.cfg.RestoreEnabled {
		m.enabled = snap.Enabled
	}
	enabled, interval := m.enabled, m.settings.Auto.Interval
	m.mu.Unlock()
	m.sched.SetMinInterval(interval)

	logging.Info().
		Int("attempts", m.history.Len()).
		Int("platforms", restored).
		Bool("enabled", enabled).
		Time("saved_at", snap.SavedAt).
		Msg("fetch state restored")
}
