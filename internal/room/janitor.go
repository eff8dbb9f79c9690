// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package room

import (
	"context"
	"time"

	"github.com/hexwave/hexwave/internal/logging"
)

// Janitor is a supervised background sweep over the registry. The grace
// timers do the real eviction work; the janitor re-arms timers for any
// empty room that lost its timer (e.g. across a supervisor restart) and
// periodically logs population stats.
type Janitor struct {
	reg      *Registry
	interval time.Duration
}

// NewJanitor creates a janitor sweeping at the given interval.
func NewJanitor(reg *Registry, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{reg: reg, interval: interval}
}

// String names the service in supervisor logs.
func (j *Janitor) String() string { return "room-janitor" }

// Serve runs the sweep loop until ctx is canceled. Implements suture.Service.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	j.reg.mu.Lock()
	var orphaned []*Room
	for id, r := range j.reg.rooms {
		if _, armed := j.reg.grace[id]; armed || j.reg.pending[id] > 0 {
			continue
		}
		if r.UserCount() == 0 {
			orphaned = append(orphaned, r)
		}
	}
	stats := Stats{Rooms: len(j.reg.rooms), PendingEvict: len(j.reg.grace)}
	j.reg.mu.Unlock()

	for _, r := range orphaned {
		j.reg.NoteEmpty(r)
	}

	logging.Debug().
		Int("rooms", stats.Rooms).
		Int("pending_evict", stats.PendingEvict).
		Int("rearmed", len(orphaned)).
		Msg("room janitor sweep")
}
