// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/hexwave/hexwave/internal/logging"
	"github.com/hexwave/hexwave/internal/models"
)

// Key prefixes for BadgerDB storage.
const (
	msgKeyPrefix  = "msg:"  // msg:<roomID>:<id> -> Message JSON
	seqKeyPrefix  = "seq:"  // seq:<roomID>      -> big-endian counter
	readKeyPrefix = "read:" // read:<roomID>:<userID> -> message id
)

// gcInterval is how often the value-log garbage collector runs.
const gcInterval = 10 * time.Minute

// BadgerStore implements MessageStore on an embedded BadgerDB.
//
// Message ids are zero-padded hex encodings of a per-room counter, so key
// order under the room's prefix equals append order and reverse iteration
// yields newest-first pages directly.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a store at path. An empty path opens an
// in-memory database, used by tests that need real transaction semantics.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func msgKey(roomID, id string) []byte {
	return []byte(msgKeyPrefix + roomID + ":" + id)
}

func msgPrefix(roomID string) []byte {
	return []byte(msgKeyPrefix + roomID + ":")
}

// Append implements MessageStore. The sequence bump and the message write
// share one transaction, so ids never collide and never leave gaps behind
// a committed message.
func (s *BadgerStore) Append(_ context.Context, roomID string, msg models.Message) (models.Message, error) {
	msg.RoomID = roomID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn, roomID)
		if err != nil {
			return err
		}
		msg.ID = fmt.Sprintf("%016x", seq)

		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		return txn.Set(msgKey(roomID, msg.ID), data)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: append: %v", ErrUnavailable, err)
	}
	return msg, nil
}

func readSeq(txn *badger.Txn, roomID string) (uint64, error) {
	var seq uint64
	item, err := txn.Get([]byte(seqKeyPrefix + roomID))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("get sequence: %w", err)
	}
	if err := item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt sequence value")
		}
		seq = binary.BigEndian.Uint64(val)
		return nil
	}); err != nil {
		return 0, err
	}
	return seq, nil
}

func writeSeq(txn *badger.Txn, roomID string, seq uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	if err := txn.Set([]byte(seqKeyPrefix+roomID), buf); err != nil {
		return fmt.Errorf("set sequence: %w", err)
	}
	return nil
}

func nextSeq(txn *badger.Txn, roomID string) (uint64, error) {
	seq, err := readSeq(txn, roomID)
	if err != nil {
		return 0, err
	}
	seq++
	if err := writeSeq(txn, roomID, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// Put implements MessageStore. Existence check, sequence bump and write
// share one transaction, so a re-delivered id stays a no-op and a later
// local Append continues past the relayed sequence.
func (s *BadgerStore) Put(_ context.Context, roomID string, msg models.Message) error {
	seq, perr := strconv.ParseUint(msg.ID, 16, 64)
	if perr != nil {
		return fmt.Errorf("store: put: invalid message id %q", msg.ID)
	}
	msg.RoomID = roomID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := msgKey(roomID, msg.ID)
		switch _, err := txn.Get(key); {
		case err == nil:
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		cur, err := readSeq(txn, roomID)
		if err != nil {
			return err
		}
		if seq > cur {
			if err := writeSeq(txn, roomID, seq); err != nil {
				return err
			}
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("%w: put: %v", ErrUnavailable, err)
	}
	return nil
}

// History implements MessageStore.
func (s *BadgerStore) History(_ context.Context, roomID string, limit int, before string) ([]models.Message, error) {
	limit = clampLimit(limit)
	prefix := msgPrefix(roomID)

	var out []models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		// Reverse iteration starts just past the room's key range; with a
		// cursor it starts at the cursor key and skips it. The cursor must
		// name a real message, or the seek would silently land on the
		// nearest older key.
		seek := append(append([]byte{}, prefix...), 0xff)
		if before != "" {
			seek = msgKey(roomID, before)
			if _, err := txn.Get(seek); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: %s", ErrUnknownMessage, before)
				}
				return err
			}
		}

		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			if before != "" && string(it.Item().Key()) == string(msgKey(roomID, before)) {
				continue
			}
			var msg models.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			if msg.Deleted {
				continue
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownMessage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: history: %v", ErrUnavailable, err)
	}
	return out, nil
}

// MarkRead implements MessageStore.
func (s *BadgerStore) MarkRead(_ context.Context, roomID, userID, uptoID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if uptoID == "" {
			newest, err := newestID(txn, roomID)
			if err != nil {
				return err
			}
			if newest == "" {
				return nil // empty room, nothing to mark
			}
			uptoID = newest
		} else {
			if _, err := txn.Get(msgKey(roomID, uptoID)); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: %s", ErrUnknownMessage, uptoID)
				}
				return err
			}
		}
		return txn.Set([]byte(readKeyPrefix+roomID+":"+userID), []byte(uptoID))
	})
	if err != nil {
		if errors.Is(err, ErrUnknownMessage) {
			return err
		}
		return fmt.Errorf("%w: mark read: %v", ErrUnavailable, err)
	}
	return nil
}

// Watermark returns userID's read watermark in roomID, or empty if unset.
func (s *BadgerStore) Watermark(roomID, userID string) (string, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(readKeyPrefix + roomID + ":" + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("%w: watermark: %v", ErrUnavailable, err)
	}
	return id, nil
}

func newestID(txn *badger.Txn, roomID string) (string, error) {
	prefix := msgPrefix(roomID)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xff)
	it.Seek(seek)
	if !it.ValidForPrefix(prefix) {
		return "", nil
	}
	return string(it.Item().Key()[len(prefix):]), nil
}

// RunGC runs the value-log garbage collector until ctx is canceled. Designed
// to run under the supervisor's data layer.
func (s *BadgerStore) RunGC(ctx context.Context) error {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// ErrNoRewrite is the normal "nothing to collect" result.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("badger value log GC failed")
			}
		}
	}
}
