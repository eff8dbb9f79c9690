// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package store persists chat messages and read watermarks, keyed by room.
//
// The MessageStore interface is the narrow seam the chat core depends on:
// append-only writes, newest-first paginated history, and per-user read
// watermarks. BadgerStore is the production implementation; MemoryStore backs
// tests; ResilientStore layers a circuit breaker and bounded retries over
// either.
package store

import (
	"context"
	"errors"

	"github.com/hexwave/hexwave/internal/models"
)

// DefaultHistoryLimit bounds a history page when the caller passes limit <= 0.
const DefaultHistoryLimit = 50

// MaxHistoryLimit caps a history page regardless of what the caller asks for.
const MaxHistoryLimit = 100

var (
	// ErrUnavailable reports that the store cannot currently serve requests
	// (backend failure or open circuit breaker).
	ErrUnavailable = errors.New("store: unavailable")

	// ErrUnknownMessage reports a cursor or watermark target that does not
	// exist in the room.
	ErrUnknownMessage = errors.New("store: unknown message id")
)

// MessageStore is the persistence contract consumed by the chat core.
type MessageStore interface {
	// Append persists a message and returns it with its assigned id and
	// timestamp filled in. Ids are unique and monotonic within a room.
	Append(ctx context.Context, roomID string, msg models.Message) (models.Message, error)

	// Put persists a message that already carries an id, as assigned by a
	// sibling instance and delivered over the relay. The write is idempotent
	// per id and advances the room's sequence past it, so later local
	// Appends cannot reuse the id.
	Put(ctx context.Context, roomID string, msg models.Message) error

	// History returns up to limit non-deleted messages, newest first. A
	// non-empty before cursor (a message id from a previous page) restricts
	// the page to strictly older messages; a cursor that names no message in
	// the room fails with ErrUnknownMessage.
	History(ctx context.Context, roomID string, limit int, before string) ([]models.Message, error)

	// MarkRead advances userID's read watermark in roomID to uptoID. An
	// empty uptoID means the newest message currently in the room.
	MarkRead(ctx context.Context, roomID, userID, uptoID string) error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
