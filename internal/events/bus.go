// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

package events

import (
	"sort"
	"sync"

	"github.com/tomtom215/adfetch/internal/logging"
	"github.com/tomtom215/adfetch/internal/metrics"
)

// Listener receives events synchronously on the publisher's goroutine.
// Slow work belongs on the listener's own goroutine.
type Listener func(Event)

// Bus fans events out to registered listeners in subscription order.
// A panicking listener is logged and skipped; the remaining listeners
// still receive the event.
type Bus struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]Listener
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[uint64]Listener)}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	metrics.EventListeners.Set(float64(len(b.listeners)))
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			metrics.EventListeners.Set(float64(len(b.listeners)))
			b.mu.Unlock()
		})
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers ev to every listener registered at the time of the call.
//
//nolint:gocritic // Event is passed by value so listeners cannot share it
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener, len(ids))
	for i, id := range ids {
		fns[i] = b.listeners[id]
	}
	b.mu.RUnlock()

	metrics.RecordEventPublished(string(ev.Type))
	for _, fn := range fns {
		deliver(fn, ev)
	}
}

//nolint:gocritic // see Publish
func deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EventListenerPanics.Inc()
			logging.Error().
				Str("event_type", string(ev.Type)).
				Str("platform", ev.Platform).
				Interface("panic", r).
				Msg("status listener panicked")
		}
	}()
	fn(ev)
}
