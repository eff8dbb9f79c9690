// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hexwave/hexwave/internal/models"
)

// MemoryStore is an in-memory MessageStore. It mirrors BadgerStore's
// semantics (monotonic per-room ids, newest-first paging, watermarks) and is
// intended for tests and ephemeral deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	messages   map[string][]models.Message // roomID -> messages in append order
	seq        map[string]uint64
	watermarks map[string]string // roomID+"/"+userID -> message id

	// FailAppends forces Append to fail; used to exercise degraded paths.
	FailAppends bool
	// FailReads forces History to fail; used to exercise degraded paths.
	FailReads bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:   make(map[string][]models.Message),
		seq:        make(map[string]uint64),
		watermarks: make(map[string]string),
	}
}

// Append implements MessageStore.
func (s *MemoryStore) Append(_ context.Context, roomID string, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppends {
		return models.Message{}, ErrUnavailable
	}

	s.seq[roomID]++
	msg.ID = fmt.Sprintf("%016x", s.seq[roomID])
	msg.RoomID = roomID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.messages[roomID] = append(s.messages[roomID], msg)
	return msg, nil
}

// Put implements MessageStore.
func (s *MemoryStore) Put(_ context.Context, roomID string, msg models.Message) error {
	seq, err := strconv.ParseUint(msg.ID, 16, 64)
	if err != nil {
		return fmt.Errorf("store: put: invalid message id %q", msg.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppends {
		return ErrUnavailable
	}

	for _, m := range s.messages[roomID] {
		if m.ID == msg.ID {
			return nil
		}
	}

	msg.RoomID = roomID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	all := append(s.messages[roomID], msg)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	s.messages[roomID] = all
	if seq > s.seq[roomID] {
		s.seq[roomID] = seq
	}
	return nil
}

// History implements MessageStore.
func (s *MemoryStore) History(_ context.Context, roomID string, limit int, before string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailReads {
		return nil, ErrUnavailable
	}

	limit = clampLimit(limit)
	all := s.messages[roomID]

	end := len(all)
	if before != "" {
		end = -1
		for i, m := range all {
			if m.ID == before {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, before)
		}
	}

	out := make([]models.Message, 0, limit)
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		if all[i].Deleted {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

// MarkRead implements MessageStore.
func (s *MemoryStore) MarkRead(_ context.Context, roomID, userID, uptoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uptoID == "" {
		all := s.messages[roomID]
		if len(all) == 0 {
			return nil
		}
		uptoID = all[len(all)-1].ID
	} else {
		found := false
		for _, m := range s.messages[roomID] {
			if m.ID == uptoID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrUnknownMessage, uptoID)
		}
	}

	s.watermarks[roomID+"/"+userID] = uptoID
	return nil
}

// Watermark returns userID's read watermark in roomID, or empty if unset.
func (s *MemoryStore) Watermark(roomID, userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermarks[roomID+"/"+userID]
}
