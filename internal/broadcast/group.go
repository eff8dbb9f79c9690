// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package broadcast

import (
	"sync"

	"github.com/hexwave/hexwave/internal/metrics"
	"github.com/hexwave/hexwave/internal/wire"
)

// Group fans frames out to a set of outboxes. All enqueues for one frame
// happen under the group lock, so every member observes the group's frames
// in the same order. Slow members drop frames inside their own Outbox and
// never hold the lock.
type Group struct {
	mu      sync.Mutex
	members map[string]*Outbox
}

// NewGroup creates an empty Group.
func NewGroup() *Group {
	return &Group{members: make(map[string]*Outbox)}
}

// Add registers a member outbox under id, replacing any previous entry.
func (g *Group) Add(id string, out *Outbox) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[id] = out
}

// AddWithSeed enqueues seed frames and then registers the member, atomically
// with respect to Broadcast. The member observes the seed frames strictly
// before any frame broadcast after registration, which is what lets a join
// acknowledgment and history page precede the live stream.
func (g *Group) AddWithSeed(id string, out *Outbox, seed ...[]byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, frame := range seed {
		out.Enqueue(frame)
	}
	g.members[id] = out
}

// Remove unregisters a member. The outbox itself is not closed; its session
// owns that.
func (g *Group) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, id)
}

// Len reports the current member count.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// MemberIDs returns a snapshot of the registered member ids.
func (g *Group) MemberIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast marshals the frame once and enqueues it to every member.
func (g *Group) Broadcast(frame wire.Frame) error {
	data, err := frame.Marshal()
	if err != nil {
		return err
	}
	g.broadcastRaw(data, "")
	return nil
}

// BroadcastExcept is Broadcast minus one member, used for echoes the sender
// already received synchronously (own typing state, own presence change).
func (g *Group) BroadcastExcept(frame wire.Frame, exceptID string) error {
	data, err := frame.Marshal()
	if err != nil {
		return err
	}
	g.broadcastRaw(data, exceptID)
	return nil
}

func (g *Group) broadcastRaw(data []byte, exceptID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, out := range g.members {
		if id == exceptID {
			continue
		}
		out.Enqueue(data)
		metrics.MessagesBroadcast.Inc()
	}
}
