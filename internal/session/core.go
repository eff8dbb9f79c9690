// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package session owns one goroutine pair per websocket connection and
// drives the connection's protocol state machine. All state transitions
// happen on the read pump, so the machine itself needs no locking; the
// write pump only drains the session's outbox.
package session

import (
	"context"

	"github.com/hexwave/hexwave/internal/identity"
	"github.com/hexwave/hexwave/internal/models"
	"github.com/hexwave/hexwave/internal/room"
	"github.com/hexwave/hexwave/internal/store"
)

// Config tunes per-session behavior.
type Config struct {
	// DefaultResolution is used when a coordinate join omits one.
	DefaultResolution int
	// HistoryLimit is the page size delivered on join.
	HistoryLimit int
	// QueueSize bounds the session's outbound frame queue.
	QueueSize int
	// NeighborRings controls how many hex rings of adjacent cells are
	// reported in the join acknowledgment.
	NeighborRings int
	// MessageRate / MessageBurst shape the token bucket applied to
	// inbound chat messages. MessageRate 0 disables the limit.
	MessageRate  float64
	MessageBurst int
	// MaxContentLength bounds one message body in bytes.
	MaxContentLength int
}

// EventPublisher relays room events to sibling instances. Typing and
// presence are deliberately not relayed: they are ephemeral and
// per-instance fan-out regenerates them locally.
type EventPublisher interface {
	PublishMessage(ctx context.Context, roomID string, msg models.Message) error
}

// NopPublisher is the EventPublisher used when the relay is disabled.
type NopPublisher struct{}

// PublishMessage implements EventPublisher.
func (NopPublisher) PublishMessage(context.Context, string, models.Message) error { return nil }

// Core bundles the dependencies shared by every session.
type Core struct {
	Registry *room.Registry
	Store    store.MessageStore
	Identity identity.Provider
	Relay    EventPublisher
	Cfg      Config
}

// NewCore wires a Core, substituting a NopPublisher for a nil relay.
func NewCore(reg *room.Registry, st store.MessageStore, idp identity.Provider, relay EventPublisher, cfg Config) *Core {
	if relay == nil {
		relay = NopPublisher{}
	}
	if cfg.QueueSize < 8 {
		cfg.QueueSize = 8
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = store.DefaultHistoryLimit
	}
	if cfg.NeighborRings <= 0 {
		cfg.NeighborRings = 1
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = 4096
	}
	return &Core{Registry: reg, Store: st, Identity: idp, Relay: relay, Cfg: cfg}
}
