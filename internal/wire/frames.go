// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package wire defines the JSON frame protocol spoken over each websocket
// connection. Every frame is {"type": "...", "data": {...}}; the type field
// discriminates the payload.
package wire

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/hexwave/hexwave/internal/grid"
	"github.com/hexwave/hexwave/internal/models"
)

// Inbound frame types (client to server).
const (
	TypeJoin             = "join"              // join by coordinates
	TypeJoinCell         = "join_cell"         // join by explicit cell id
	TypeJoinConversation = "join_conversation" // join a direct conversation
	TypeMessage          = "message"
	TypeTyping           = "typing"
	TypeRead             = "read"
	TypeLeave            = "leave"
	TypePing             = "ping"
)

// Outbound frame types (server to client).
const (
	TypeRoomJoined      = "room_joined"
	TypeHistory         = "history"
	TypeNewMessage      = "new_message"
	TypePresenceChanged = "presence_changed"
	TypeUserJoined      = "user_joined"
	TypeUserLeft        = "user_left"
	TypeTypingChanged   = "typing_changed"
	TypeReadMarked      = "read_marked"
	TypeGap             = "gap"
	TypeWarning         = "warning"
	TypeError           = "error"
	TypePong            = "pong"
)

// Error codes carried in error frames.
const (
	CodeAuthFailed   = "authentication_failed"
	CodeInvalidJoin  = "invalid_join"
	CodeRoomFull     = "room_full"
	CodeSendFailed   = "send_failed"
	CodeRateLimited  = "rate_limited"
	CodeProtocol     = "protocol_error"
	CodeInternal     = "internal_error"
	CodeNotConnected = "not_in_room"
)

// Frame is the envelope for every message on the wire.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Join requests membership of the spatial room covering a coordinate.
// Token must be present on the first frame of a connection. A nil
// Resolution selects the server's default.
type Join struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Resolution *int    `json:"resolution,omitempty"`
	Token      string  `json:"token,omitempty"`
}

// JoinCell requests membership of a spatial room by explicit cell id.
type JoinCell struct {
	CellID string `json:"cell_id"`
	Token  string `json:"token,omitempty"`
}

// JoinConversation requests membership of a direct (two-party) room.
type JoinConversation struct {
	ConversationID string `json:"conversation_id"`
	Token          string `json:"token,omitempty"`
}

// SendContent carries one chat message from a session to its room.
type SendContent struct {
	Content string `json:"content"`
}

// Typing signals the start or stop of typing. Not persisted.
type Typing struct {
	IsTyping bool `json:"is_typing"`
}

// Read advances the sender's read watermark. An empty UpToMessageID means
// "everything currently in the room".
type Read struct {
	UpToMessageID string `json:"up_to_message_id,omitempty"`
}

// CellInfo is the display metadata for a spatial room's cell.
type CellInfo struct {
	CellID      string         `json:"cell_id"`
	Resolution  int            `json:"resolution"`
	CenterLat   float64        `json:"center_lat"`
	CenterLng   float64        `json:"center_lng"`
	DisplayName string         `json:"display_name"`
	Boundary    [][2]float64   `json:"boundary,omitempty"`
	Neighbors   []RoomNeighbor `json:"neighbors,omitempty"`
}

// RoomNeighbor is a neighboring cell enriched with live presence.
type RoomNeighbor struct {
	grid.Neighbor
	ActiveUsers int `json:"active_users"`
}

// RoomJoined acknowledges a completed join. It is the client's sole
// synchronization point: ordering guarantees start at this frame.
type RoomJoined struct {
	RoomID      string    `json:"room_id"`
	Kind        string    `json:"kind"` // "spatial" or "direct"
	IsNewRoom   bool      `json:"is_new_room"`
	MemberCount int       `json:"member_count"`
	Cell        *CellInfo `json:"cell,omitempty"`
}

// History delivers the recent-message page for a just-joined session as one
// ordered batch, oldest first.
type History struct {
	Messages []models.Message `json:"messages"`
}

// NewMessage broadcasts one appended message to a room.
type NewMessage struct {
	Message models.Message `json:"message"`
}

// PresenceChanged carries a room's updated member count.
type PresenceChanged struct {
	MemberCount int `json:"member_count"`
}

// UserEvent announces a join or leave to the room's other members.
type UserEvent struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	MemberCount int    `json:"member_count"`
}

// TypingChanged broadcasts a member's typing state.
type TypingChanged struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// ReadMarked broadcasts an advanced read watermark.
type ReadMarked struct {
	UserID        string `json:"user_id"`
	UpToMessageID string `json:"up_to_message_id"`
}

// Gap informs a slow session that events were dropped from its queue. The
// session remains attached; the client should refetch history if it cares.
type Gap struct {
	Dropped int `json:"dropped"`
}

// Warning is a non-fatal, session-local notice (e.g. degraded history).
type Warning struct {
	Message string `json:"message"`
}

// Error is a session-local error report.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds a frame from a payload, marshaling it into the data field.
func New(frameType string, payload interface{}) (Frame, error) {
	if payload == nil {
		return Frame{Type: frameType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: marshal %s payload: %w", frameType, err)
	}
	return Frame{Type: frameType, Data: data}, nil
}

// MustNew is New for payloads that cannot fail to marshal.
func MustNew(frameType string, payload interface{}) Frame {
	f, err := New(frameType, payload)
	if err != nil {
		panic(err)
	}
	return f
}

// Marshal serializes the frame for the wire.
func (f Frame) Marshal() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s frame: %w", f.Type, err)
	}
	return data, nil
}

// Decode unmarshals the frame's data field into v.
func (f Frame) Decode(v interface{}) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("wire: frame %s has no data", f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("wire: decode %s payload: %w", f.Type, err)
	}
	return nil
}

// ErrorFrame builds an error frame.
func ErrorFrame(code, message string) Frame {
	return MustNew(TypeError, Error{Code: code, Message: message})
}

// WarningFrame builds a warning frame.
func WarningFrame(message string) Frame {
	return MustNew(TypeWarning, Warning{Message: message})
}
