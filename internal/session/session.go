// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hexwave/hexwave/internal/broadcast"
	"github.com/hexwave/hexwave/internal/grid"
	"github.com/hexwave/hexwave/internal/identity"
	"github.com/hexwave/hexwave/internal/logging"
	"github.com/hexwave/hexwave/internal/metrics"
	"github.com/hexwave/hexwave/internal/models"
	"github.com/hexwave/hexwave/internal/room"
	"github.com/hexwave/hexwave/internal/store"
	"github.com/hexwave/hexwave/internal/wire"
)

// State is the session's protocol state. Transitions happen only on the
// read pump goroutine.
type State int

const (
	// StateConnecting: socket open, no verified identity yet. The first
	// join frame must carry a token.
	StateConnecting State = iota
	// StateAuthenticated: identity verified, not in a room.
	StateAuthenticated
	// StateActive: attached to a room.
	StateActive
	// StateClosed: terminal.
	StateClosed
)

// errClose tells the read pump to terminate the connection. The error frame
// explaining why, if any, has already been enqueued.
var errClose = errors.New("session: close")

// Session is one websocket connection's protocol driver.
//
// mu serializes HandleFrame (read pump) against Close, which the manager
// may call from its shutdown path. Within one connection all frames are
// handled sequentially.
type Session struct {
	id   string
	core *Core
	out  *broadcast.Outbox

	mu       sync.Mutex
	state    State
	identity identity.Identity
	room     *room.Room
	limiter  *rate.Limiter
}

// New creates a Session in StateConnecting.
func New(core *Core) *Session {
	s := &Session{
		id:    uuid.NewString(),
		core:  core,
		out:   broadcast.NewOutbox(core.Cfg.QueueSize),
		state: StateConnecting,
	}
	if core.Cfg.MessageRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(core.Cfg.MessageRate), core.Cfg.MessageBurst)
	}
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the verified identity; zero before authentication.
func (s *Session) Identity() identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Outbox exposes the outbound queue for the write pump and for tests.
func (s *Session) Outbox() *broadcast.Outbox { return s.out }

// HandleFrame processes one inbound frame. A non-nil return means the
// connection must close; any error frame owed to the client has already
// been enqueued.
func (s *Session) HandleFrame(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return errClose
	}

	var f wire.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.send(wire.ErrorFrame(wire.CodeProtocol, "malformed frame"))
		return nil
	}

	// Before authentication only pings and join frames are legal.
	if s.state == StateConnecting {
		switch f.Type {
		case wire.TypePing, wire.TypeJoin, wire.TypeJoinCell, wire.TypeJoinConversation:
		default:
			s.send(wire.ErrorFrame(wire.CodeAuthFailed, "authenticate with a join frame first"))
			return errClose
		}
	}

	switch f.Type {
	case wire.TypePing:
		s.send(wire.Frame{Type: wire.TypePong})
		return nil
	case wire.TypeJoin:
		return s.handleJoin(ctx, f)
	case wire.TypeJoinCell:
		return s.handleJoinCell(ctx, f)
	case wire.TypeJoinConversation:
		return s.handleJoinConversation(ctx, f)
	case wire.TypeMessage:
		return s.handleMessage(ctx, f)
	case wire.TypeTyping:
		return s.handleTyping(f)
	case wire.TypeRead:
		return s.handleRead(ctx, f)
	case wire.TypeLeave:
		s.leaveRoom()
		return nil
	default:
		s.send(wire.ErrorFrame(wire.CodeProtocol, "unknown frame type: "+f.Type))
		return nil
	}
}

// Close tears the session down: leaves its room and closes the outbox,
// which ends the write pump. Safe to call more than once and from any
// goroutine.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.leaveRoom()
	s.state = StateClosed
	s.out.Close()
}

// ensureAuth verifies the token on the first join frame. Later joins on an
// authenticated session ignore the token field.
func (s *Session) ensureAuth(ctx context.Context, token string) error {
	if s.state != StateConnecting {
		return nil
	}
	id, err := s.core.Identity.Verify(ctx, token)
	if err != nil {
		metrics.AuthFailures.Inc()
		metrics.RoomJoinRejections.WithLabelValues("auth").Inc()
		s.send(wire.ErrorFrame(wire.CodeAuthFailed, "invalid or missing token"))
		return errClose
	}
	s.identity = id
	s.state = StateAuthenticated
	logging.Debug().Str("session_id", s.id).Str("user_id", id.UserID).Msg("session authenticated")
	return nil
}

func (s *Session) handleJoin(ctx context.Context, f wire.Frame) error {
	var j wire.Join
	if err := f.Decode(&j); err != nil {
		s.send(wire.ErrorFrame(wire.CodeProtocol, "malformed join"))
		return nil
	}
	if err := s.ensureAuth(ctx, j.Token); err != nil {
		return err
	}

	res := s.core.Cfg.DefaultResolution
	if j.Resolution != nil {
		res = *j.Resolution
	}
	cell, err := grid.CellAt(j.Lat, j.Lng, res)
	if err != nil {
		metrics.RoomJoinRejections.WithLabelValues("invalid").Inc()
		s.send(wire.ErrorFrame(wire.CodeInvalidJoin, err.Error()))
		return nil
	}
	return s.joinCell(ctx, cell)
}

func (s *Session) handleJoinCell(ctx context.Context, f wire.Frame) error {
	var j wire.JoinCell
	if err := f.Decode(&j); err != nil {
		s.send(wire.ErrorFrame(wire.CodeProtocol, "malformed join_cell"))
		return nil
	}
	if err := s.ensureAuth(ctx, j.Token); err != nil {
		return err
	}

	cell := grid.CellID(j.CellID)
	if _, err := grid.Resolution(cell); err != nil {
		metrics.RoomJoinRejections.WithLabelValues("invalid").Inc()
		s.send(wire.ErrorFrame(wire.CodeInvalidJoin, "invalid cell id"))
		return nil
	}
	return s.joinCell(ctx, cell)
}

func (s *Session) handleJoinConversation(ctx context.Context, f wire.Frame) error {
	var j wire.JoinConversation
	if err := f.Decode(&j); err != nil {
		s.send(wire.ErrorFrame(wire.CodeProtocol, "malformed join_conversation"))
		return nil
	}
	if err := s.ensureAuth(ctx, j.Token); err != nil {
		return err
	}
	if j.ConversationID == "" {
		s.send(wire.ErrorFrame(wire.CodeInvalidJoin, "missing conversation_id"))
		return nil
	}

	r, isNew := s.core.Registry.ResolveDirect(j.ConversationID)
	defer s.core.Registry.EndJoin(r.ID)
	return s.completeJoin(ctx, r, isNew, nil)
}

func (s *Session) handleMessage(ctx context.Context, f wire.Frame) error {
	if s.room == nil {
		s.send(wire.ErrorFrame(wire.CodeNotConnected, "join a room first"))
		return nil
	}
	if s.limiter != nil && !s.limiter.Allow() {
		metrics.RateLimitRejections.Inc()
		s.send(wire.ErrorFrame(wire.CodeRateLimited, "sending too fast"))
		return nil
	}

	var sc wire.SendContent
	if err := f.Decode(&sc); err != nil {
		s.send(wire.ErrorFrame(wire.CodeProtocol, "malformed message"))
		return nil
	}
	if sc.Content == "" || len(sc.Content) > s.core.Cfg.MaxContentLength {
		s.send(wire.ErrorFrame(wire.CodeProtocol, "message empty or too long"))
		return nil
	}

	metrics.MessagesReceived.Inc()
	start := time.Now()
	msg, err := s.core.Store.Append(ctx, s.room.ID, models.Message{
		UserID:   s.identity.UserID,
		Username: s.identity.Username,
		Content:  sc.Content,
	})
	metrics.RecordStoreOperation("append", time.Since(start), err)
	if err != nil {
		s.send(wire.ErrorFrame(wire.CodeSendFailed, "message not delivered, try again"))
		return nil
	}

	_ = s.room.Broadcast(wire.MustNew(wire.TypeNewMessage, wire.NewMessage{Message: msg}))
	if err := s.core.Relay.PublishMessage(ctx, s.room.ID, msg); err != nil {
		metrics.RelayErrors.WithLabelValues("publish").Inc()
		logging.Warn().Err(err).Str("room_id", s.room.ID).Msg("relay publish failed")
	}
	return nil
}

func (s *Session) handleTyping(f wire.Frame) error {
	if s.room == nil {
		s.send(wire.ErrorFrame(wire.CodeNotConnected, "join a room first"))
		return nil
	}
	var t wire.Typing
	if err := f.Decode(&t); err != nil {
		s.send(wire.ErrorFrame(wire.CodeProtocol, "malformed typing"))
		return nil
	}
	return ignoreBroadcastErr(s.room.SetTyping(s.identity.UserID, s.identity.Username, t.IsTyping))
}

func (s *Session) handleRead(ctx context.Context, f wire.Frame) error {
	if s.room == nil {
		s.send(wire.ErrorFrame(wire.CodeNotConnected, "join a room first"))
		return nil
	}
	var rd wire.Read
	if err := f.Decode(&rd); err != nil {
		s.send(wire.ErrorFrame(wire.CodeProtocol, "malformed read"))
		return nil
	}

	start := time.Now()
	err := s.core.Store.MarkRead(ctx, s.room.ID, s.identity.UserID, rd.UpToMessageID)
	metrics.RecordStoreOperation("mark_read", time.Since(start), err)
	switch {
	case errors.Is(err, store.ErrUnknownMessage):
		s.send(wire.ErrorFrame(wire.CodeProtocol, "unknown message id"))
		return nil
	case err != nil:
		s.send(wire.ErrorFrame(wire.CodeSendFailed, "read marker not saved"))
		return nil
	}

	_ = s.room.Broadcast(wire.MustNew(wire.TypeReadMarked, wire.ReadMarked{
		UserID:        s.identity.UserID,
		UpToMessageID: rd.UpToMessageID,
	}))
	return nil
}

// send enqueues a frame to the session's own outbox.
func (s *Session) send(f wire.Frame) {
	data, err := f.Marshal()
	if err != nil {
		logging.Error().Err(err).Str("type", f.Type).Msg("frame marshal failed")
		return
	}
	s.out.Enqueue(data)
}

func appendFrame(seed [][]byte, f wire.Frame) [][]byte {
	data, err := f.Marshal()
	if err != nil {
		logging.Error().Err(err).Str("type", f.Type).Msg("seed frame marshal failed")
		return seed
	}
	return append(seed, data)
}

// Broadcast failures are marshal errors on our own payload types; they are
// programming errors and must not close the session.
func ignoreBroadcastErr(err error) error {
	if err != nil {
		logging.Error().Err(err).Msg("broadcast failed")
	}
	return nil
}
