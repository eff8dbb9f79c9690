// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package room tracks live rooms and their membership. Rooms come in two
// kinds: spatial rooms bound to a grid cell, created on first join and
// evicted after a grace period of emptiness, and direct rooms bound to
// exactly two participants.
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/hexwave/hexwave/internal/broadcast"
	"github.com/hexwave/hexwave/internal/grid"
	"github.com/hexwave/hexwave/internal/identity"
	"github.com/hexwave/hexwave/internal/wire"
)

// Room kinds.
const (
	KindSpatial = "spatial"
	KindDirect  = "direct"
)

var (
	// ErrRoomFull reports a join rejected by the member cap.
	ErrRoomFull = errors.New("room: full")

	// ErrNotParticipant reports a direct-room join by a third identity.
	ErrNotParticipant = errors.New("room: not a participant")
)

// member is one attached session.
type member struct {
	id  identity.Identity
	out *broadcast.Outbox
}

// Room is one live room. Member counts are derived from attached sessions,
// deduplicated by user: a user with two devices counts once and announces
// presence only on their first attach and last detach.
type Room struct {
	ID   string
	Kind string
	// Cell is set for spatial rooms only.
	Cell grid.CellID

	group *broadcast.Group

	mu      sync.Mutex
	members map[string]member // sessionID -> member
	typing  map[string]*time.Timer
	// participants pins a direct room to its two user ids. nil for
	// spatial rooms.
	participants map[string]struct{}

	memberCap int
	typingTTL time.Duration
	createdAt time.Time
}

func newRoom(id, kind string, cell grid.CellID, memberCap int, typingTTL time.Duration) *Room {
	return &Room{
		ID:        id,
		Kind:      kind,
		Cell:      cell,
		group:     broadcast.NewGroup(),
		members:   make(map[string]member),
		typing:    make(map[string]*time.Timer),
		memberCap: memberCap,
		typingTTL: typingTTL,
		createdAt: time.Now(),
	}
}

// Attach adds a session to the room. firstOfUser reports whether this is
// the user's first live session here, i.e. whether a user_joined event is
// due. userCount is the post-attach distinct-user count.
func (r *Room) Attach(sessionID string, id identity.Identity, out *broadcast.Outbox) (userCount int, firstOfUser bool, err error) {
	return r.AttachWithSeed(sessionID, id, out, nil)
}

// AttachWithSeed is Attach with a join handshake: seed, if non-nil, is
// called with the post-attach user count and its frames are delivered to
// the new member before anything broadcast after the attach. Seed frames
// are built while the room is locked, so the callback must not block.
func (r *Room) AttachWithSeed(sessionID string, id identity.Identity, out *broadcast.Outbox, seed func(userCount int) [][]byte) (userCount int, firstOfUser bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.participants != nil {
		if _, ok := r.participants[id.UserID]; !ok {
			if len(r.participants) >= 2 {
				return 0, false, ErrNotParticipant
			}
			r.participants[id.UserID] = struct{}{}
		}
	}

	already := r.userPresentLocked(id.UserID)
	if !already && r.memberCap > 0 && r.userCountLocked() >= r.memberCap {
		return 0, false, ErrRoomFull
	}

	r.members[sessionID] = member{id: id, out: out}
	count := r.userCountLocked()
	var frames [][]byte
	if seed != nil {
		frames = seed(count)
	}
	r.group.AddWithSeed(sessionID, out, frames...)
	return count, !already, nil
}

// Detach removes a session. lastOfUser reports whether the user has no
// remaining sessions here; userCount is the post-detach distinct-user count.
func (r *Room) Detach(sessionID string) (userCount int, lastOfUser bool, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[sessionID]
	if !ok {
		return r.userCountLocked(), false, ""
	}
	delete(r.members, sessionID)
	r.group.Remove(sessionID)

	last := !r.userPresentLocked(m.id.UserID)
	if last {
		r.stopTypingLocked(m.id.UserID)
	}
	return r.userCountLocked(), last, m.id.UserID
}

// UserCount reports the number of distinct users attached.
func (r *Room) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userCountLocked()
}

// Broadcast fans a frame out to every attached session.
func (r *Room) Broadcast(frame wire.Frame) error {
	return r.group.Broadcast(frame)
}

// BroadcastExcept fans a frame out to every attached session but one.
func (r *Room) BroadcastExcept(frame wire.Frame, exceptSessionID string) error {
	return r.group.BroadcastExcept(frame, exceptSessionID)
}

// SetTyping records a typing state change and broadcasts it. A started
// indicator expires on its own after the room's typing TTL; renewals reset
// the clock.
func (r *Room) SetTyping(userID, username string, isTyping bool) error {
	r.mu.Lock()
	if isTyping {
		if t, ok := r.typing[userID]; ok {
			t.Stop()
		}
		r.typing[userID] = time.AfterFunc(r.typingTTL, func() {
			r.expireTyping(userID, username)
		})
	} else {
		if !r.stopTypingLocked(userID) {
			// Stop without a live indicator; nothing to announce.
			r.mu.Unlock()
			return nil
		}
	}
	r.mu.Unlock()

	return r.Broadcast(wire.MustNew(wire.TypeTypingChanged, wire.TypingChanged{
		UserID:   userID,
		Username: username,
		IsTyping: isTyping,
	}))
}

func (r *Room) expireTyping(userID, username string) {
	r.mu.Lock()
	if _, ok := r.typing[userID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.typing, userID)
	r.mu.Unlock()

	_ = r.Broadcast(wire.MustNew(wire.TypeTypingChanged, wire.TypingChanged{
		UserID:   userID,
		Username: username,
		IsTyping: false,
	}))
}

func (r *Room) stopTypingLocked(userID string) bool {
	t, ok := r.typing[userID]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.typing, userID)
	return true
}

func (r *Room) userCountLocked() int {
	seen := make(map[string]struct{}, len(r.members))
	for _, m := range r.members {
		seen[m.id.UserID] = struct{}{}
	}
	return len(seen)
}

func (r *Room) userPresentLocked(userID string) bool {
	for _, m := range r.members {
		if m.id.UserID == userID {
			return true
		}
	}
	return false
}
