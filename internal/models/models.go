// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package models holds the domain types shared across the chat core.
package models

import "time"

// Identity is a verified user identity as returned by the identity provider.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Message is one chat message as persisted by the message store.
//
// IDs are unique and monotonically ordered within a room, which makes the id
// of the oldest message in a page a valid "before" cursor for the next page.
type Message struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"room_id"`
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
}
