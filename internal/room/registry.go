// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package room

import (
	"strings"
	"sync"
	"time"

	"github.com/hexwave/hexwave/internal/grid"
	"github.com/hexwave/hexwave/internal/logging"
	"github.com/hexwave/hexwave/internal/metrics"
	"github.com/hexwave/hexwave/internal/wire"
)

// directPrefix namespaces direct-room ids away from cell ids.
const directPrefix = "dm:"

// Config tunes registry behavior.
type Config struct {
	// GracePeriod is how long an empty room lingers before eviction. An
	// attach during the grace period cancels it.
	GracePeriod time.Duration
	// MemberCap bounds distinct users per room; 0 disables the cap.
	MemberCap int
	// TypingTTL expires typing indicators that are never explicitly stopped.
	TypingTTL time.Duration
}

// Registry owns the set of live rooms. Rooms are created on first join and
// removed only by the grace-period eviction path, so a room pointer handed
// out by Resolve stays valid while any session holds it.
//
// Resolve* additionally takes a join hold on the room: until the caller
// releases it with EndJoin, neither a grace timer nor the janitor can evict
// the room, so a join whose history fetch outlives the grace period still
// attaches to the room it resolved.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	rooms   map[string]*Room
	grace   map[string]*time.Timer
	pending map[string]int // roomID -> in-flight joins
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:     cfg,
		rooms:   make(map[string]*Room),
		grace:   make(map[string]*time.Timer),
		pending: make(map[string]int),
	}
}

// ResolveCell returns the spatial room for a cell, creating it if absent.
// isNew reports creation. The room is held against eviction until the
// caller's EndJoin.
func (reg *Registry) ResolveCell(cell grid.CellID) (r *Room, isNew bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := string(cell)
	if r, ok := reg.rooms[id]; ok {
		reg.cancelGraceLocked(id)
		reg.pending[id]++
		return r, false
	}
	r = newRoom(id, KindSpatial, cell, reg.cfg.MemberCap, reg.cfg.TypingTTL)
	reg.rooms[id] = r
	reg.pending[id]++
	metrics.ActiveRooms.WithLabelValues(KindSpatial).Inc()
	logging.Debug().Str("room_id", id).Msg("spatial room created")
	return r, true
}

// ResolveDirect returns the direct room for a conversation id, creating it
// if absent. The first two distinct identities to attach become the room's
// participants. The room is held against eviction until the caller's
// EndJoin.
func (reg *Registry) ResolveDirect(conversationID string) (r *Room, isNew bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := directPrefix + conversationID
	if r, ok := reg.rooms[id]; ok {
		reg.cancelGraceLocked(id)
		reg.pending[id]++
		return r, false
	}
	r = newRoom(id, KindDirect, "", 0, reg.cfg.TypingTTL)
	r.participants = make(map[string]struct{}, 2)
	reg.rooms[id] = r
	reg.pending[id]++
	metrics.ActiveRooms.WithLabelValues(KindDirect).Inc()
	logging.Debug().Str("room_id", id).Msg("direct room created")
	return r, true
}

// EndJoin releases the hold taken by a Resolve* call once the join has
// attached or been abandoned. Every Resolve pairs with exactly one EndJoin.
func (reg *Registry) EndJoin(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if n := reg.pending[roomID]; n > 1 {
		reg.pending[roomID] = n - 1
	} else {
		delete(reg.pending, roomID)
	}
}

// Get returns a live room by id, or nil.
func (reg *Registry) Get(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[roomID]
}

// IsDirectID reports whether roomID names a direct room.
func IsDirectID(roomID string) bool {
	return strings.HasPrefix(roomID, directPrefix)
}

// NoteEmpty schedules the grace-period eviction of a room that has just
// lost its last user. An attach before the deadline cancels it; the timer
// re-checks emptiness before evicting, so a lost cancellation race cannot
// remove a repopulated room.
func (reg *Registry) NoteEmpty(r *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.cancelGraceLocked(r.ID)
	reg.grace[r.ID] = time.AfterFunc(reg.cfg.GracePeriod, func() {
		reg.evict(r.ID)
	})
}

// NoteOccupied cancels any pending eviction for a room that regained a
// user. Resolve* paths call this implicitly; sessions that re-attach to a
// room pointer they already hold call it directly.
func (reg *Registry) NoteOccupied(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.cancelGraceLocked(roomID)
}

func (reg *Registry) evict(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.grace, roomID)
	r, ok := reg.rooms[roomID]
	if !ok || r.UserCount() > 0 || reg.pending[roomID] > 0 {
		return
	}
	delete(reg.rooms, roomID)
	metrics.ActiveRooms.WithLabelValues(r.Kind).Dec()
	metrics.RoomEvictions.Inc()
	logging.Debug().Str("room_id", roomID).Msg("room evicted after grace period")
}

func (reg *Registry) cancelGraceLocked(roomID string) {
	if t, ok := reg.grace[roomID]; ok {
		t.Stop()
		delete(reg.grace, roomID)
	}
}

// Neighbors returns the adjacent cells of a spatial room's cell, enriched
// with the live user counts of any rooms currently open on them. Cells
// without a live room report zero users.
func (reg *Registry) Neighbors(cell grid.CellID, rings int) ([]wire.RoomNeighbor, error) {
	neighbors, err := grid.Neighbors(cell, rings)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]wire.RoomNeighbor, 0, len(neighbors))
	for _, n := range neighbors {
		rn := wire.RoomNeighbor{Neighbor: n}
		if r, ok := reg.rooms[string(n.Cell)]; ok {
			rn.ActiveUsers = r.UserCount()
		}
		out = append(out, rn)
	}
	return out, nil
}

// Stats summarizes the registry for health reporting.
type Stats struct {
	Rooms        int `json:"rooms"`
	PendingEvict int `json:"pending_evict"`
	Users        int `json:"users"`
}

// Snapshot returns current registry stats.
func (reg *Registry) Snapshot() Stats {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s := Stats{Rooms: len(reg.rooms), PendingEvict: len(reg.grace)}
	for _, r := range reg.rooms {
		s.Users += r.UserCount()
	}
	return s
}
