// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package session

import (
	"context"
	"errors"
	"time"

	"github.com/hexwave/hexwave/internal/grid"
	"github.com/hexwave/hexwave/internal/logging"
	"github.com/hexwave/hexwave/internal/metrics"
	"github.com/hexwave/hexwave/internal/models"
	"github.com/hexwave/hexwave/internal/room"
	"github.com/hexwave/hexwave/internal/wire"
)

// This file is the navigation path: every join, including a neighbor switch
// while already Active, flows through joinCell/completeJoin. A switch is a
// leave-then-join; if the target join fails, the session is left in
// StateAuthenticated with no room, never attached to both.

// joinCell resolves the spatial room for a cell and completes the join. The
// join hold taken by Resolve is released when the handshake finishes either
// way, so the room cannot be evicted under a slow history fetch.
func (s *Session) joinCell(ctx context.Context, cell grid.CellID) error {
	r, isNew := s.core.Registry.ResolveCell(cell)
	defer s.core.Registry.EndJoin(r.ID)

	info, err := s.cellInfo(cell)
	if err != nil {
		// Cell validated above; failure here means the id decodes but its
		// center fell outside the projection domain.
		metrics.RoomJoinRejections.WithLabelValues("invalid").Inc()
		s.send(wire.ErrorFrame(wire.CodeInvalidJoin, err.Error()))
		if r.UserCount() == 0 {
			s.core.Registry.NoteEmpty(r)
		}
		return nil
	}
	return s.completeJoin(ctx, r, isNew, info)
}

func (s *Session) cellInfo(cell grid.CellID) (*wire.CellInfo, error) {
	res, err := grid.Resolution(cell)
	if err != nil {
		return nil, err
	}
	lat, lng, err := grid.Center(cell)
	if err != nil {
		return nil, err
	}
	boundary, err := grid.Boundary(cell)
	if err != nil {
		return nil, err
	}
	neighbors, err := s.core.Registry.Neighbors(cell, s.core.Cfg.NeighborRings)
	if err != nil {
		return nil, err
	}
	return &wire.CellInfo{
		CellID:      string(cell),
		Resolution:  res,
		CenterLat:   lat,
		CenterLng:   lng,
		DisplayName: grid.DisplayName(cell),
		Boundary:    boundary,
		Neighbors:   neighbors,
	}, nil
}

// completeJoin attaches the session to a room and delivers the join
// handshake. The room_joined and history frames are seeded atomically with
// the attach, so the client observes them before any frame broadcast
// afterwards. History is fetched before the attach; a message that lands in
// the overlap window appears both in the page and as a live frame, and ids
// are the dedup key.
func (s *Session) completeJoin(ctx context.Context, r *room.Room, isNew bool, info *wire.CellInfo) error {
	start := time.Now()
	s.leaveRoom()

	msgs, histErr := s.core.Store.History(ctx, r.ID, s.core.Cfg.HistoryLimit, "")
	metrics.RecordStoreOperation("history", time.Since(start), histErr)
	// Oldest first on the wire; the store pages newest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	count, first, err := r.AttachWithSeed(s.id, s.identity, s.out, func(userCount int) [][]byte {
		seed := make([][]byte, 0, 3)
		seed = appendFrame(seed, wire.MustNew(wire.TypeRoomJoined, wire.RoomJoined{
			RoomID:      r.ID,
			Kind:        r.Kind,
			IsNewRoom:   isNew,
			MemberCount: userCount,
			Cell:        info,
		}))
		seed = appendFrame(seed, wire.MustNew(wire.TypeHistory, wire.History{Messages: msgs}))
		if histErr != nil {
			seed = appendFrame(seed, wire.WarningFrame("history unavailable, continuing without it"))
		}
		return seed
	})
	if err != nil {
		if r.UserCount() == 0 {
			s.core.Registry.NoteEmpty(r)
		}
		switch {
		case errors.Is(err, room.ErrRoomFull):
			metrics.RoomJoinRejections.WithLabelValues("full").Inc()
			s.send(wire.ErrorFrame(wire.CodeRoomFull, "room is at capacity"))
		case errors.Is(err, room.ErrNotParticipant):
			metrics.RoomJoinRejections.WithLabelValues("invalid").Inc()
			s.send(wire.ErrorFrame(wire.CodeInvalidJoin, "not a participant of this conversation"))
		default:
			s.send(wire.ErrorFrame(wire.CodeInternal, "join failed"))
		}
		return nil
	}

	s.room = r
	s.state = StateActive
	metrics.JoinDuration.Observe(time.Since(start).Seconds())

	if first {
		_ = r.BroadcastExcept(wire.MustNew(wire.TypeUserJoined, wire.UserEvent{
			UserID:      s.identity.UserID,
			Username:    s.identity.Username,
			MemberCount: count,
		}), s.id)
		_ = r.Broadcast(wire.MustNew(wire.TypePresenceChanged, wire.PresenceChanged{MemberCount: count}))
	}

	logging.Debug().
		Str("session_id", s.id).
		Str("room_id", r.ID).
		Int("members", count).
		Bool("new_room", isNew).
		Msg("session joined room")
	return nil
}

// leaveRoom detaches the session from its current room, announcing the
// departure and starting the room's grace timer if it emptied.
func (s *Session) leaveRoom() {
	if s.room == nil {
		return
	}
	r := s.room
	s.room = nil
	if s.state == StateActive {
		s.state = StateAuthenticated
	}

	count, last, userID := r.Detach(s.id)
	if last {
		_ = r.Broadcast(wire.MustNew(wire.TypeUserLeft, wire.UserEvent{
			UserID:      userID,
			Username:    s.identity.Username,
			MemberCount: count,
		}))
		_ = r.Broadcast(wire.MustNew(wire.TypePresenceChanged, wire.PresenceChanged{MemberCount: count}))
	}
	if count == 0 {
		s.core.Registry.NoteEmpty(r)
	}
}
