// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hexwave/hexwave/internal/logging"
	"github.com/hexwave/hexwave/internal/metrics"
	"github.com/hexwave/hexwave/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Manager accepts websocket connections and runs the pump pair for each
// session. It tracks live sessions so shutdown can close them all.
type Manager struct {
	core     *Core
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager. checkOrigin nil allows all origins; the
// API layer passes one derived from the CORS config.
func NewManager(core *Core, checkOrigin func(r *http.Request) bool) *Manager {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Manager{
		core: core,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		sessions: make(map[string]*Session),
	}
}

// Count reports live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ServeHTTP upgrades the request and runs the session until the connection
// drops.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := New(m.core)
	if !m.register(s) {
		_ = conn.Close()
		return
	}

	metrics.SessionsTotal.Inc()
	metrics.ActiveSessions.Inc()
	logging.Debug().Str("session_id", s.ID()).Str("remote", r.RemoteAddr).Msg("session connected")

	go m.writePump(s, conn)
	m.readPump(r.Context(), s, conn)
}

func (m *Manager) register(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.sessions[s.ID()] = s
	return true
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()
}

// readPump drives the protocol state machine. It owns session teardown.
func (m *Manager) readPump(ctx context.Context, s *Session, conn *websocket.Conn) {
	defer func() {
		s.Close()
		m.unregister(s)
		_ = conn.Close()
		metrics.ActiveSessions.Dec()
		logging.Debug().Str("session_id", s.ID()).Msg("session closed")
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("session_id", s.ID()).Msg("unexpected websocket close")
			}
			return
		}
		if err := s.HandleFrame(ctx, data); err != nil {
			// Give the write pump a moment to flush the final error frame.
			time.Sleep(50 * time.Millisecond)
			return
		}
	}
}

// writePump drains the session outbox onto the socket. After catching up
// on a backlog it emits a single gap frame if the outbox dropped anything.
func (m *Manager) writePump(s *Session, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	out := s.Outbox()
	for {
		select {
		case data, ok := <-out.Frames():
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			if out.Len() == 0 {
				if dropped := out.TakeGap(); dropped > 0 {
					gap, err := wire.MustNew(wire.TypeGap, wire.Gap{Dropped: int(dropped)}).Marshal()
					if err == nil {
						_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
						if err := conn.WriteMessage(websocket.TextMessage, gap); err != nil {
							return
						}
					}
				}
			}

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Shutdown closes every live session and refuses new ones.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	logging.Info().Int("sessions", len(sessions)).Msg("session manager shut down")
}
