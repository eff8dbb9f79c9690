// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexwave/hexwave/internal/models"
)

// storeUnderTest lets the contract tests run against both implementations.
type storeUnderTest interface {
	MessageStore
}

func eachStore(t *testing.T, fn func(t *testing.T, s storeUnderTest)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("badger", func(t *testing.T) {
		s, err := OpenBadgerStore(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func appendN(t *testing.T, s MessageStore, roomID string, n int) []models.Message {
	t.Helper()
	out := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := s.Append(context.Background(), roomID, models.Message{
			UserID:   "u1",
			Username: "alice",
			Content:  fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		msgs := appendN(t, s, "room-a", 5)
		for i := 1; i < len(msgs); i++ {
			assert.Greater(t, msgs[i].ID, msgs[i-1].ID, "ids must sort in append order")
		}
		for _, m := range msgs {
			assert.Len(t, m.ID, 16)
			assert.Equal(t, "room-a", m.RoomID)
			assert.False(t, m.Timestamp.IsZero())
		}
	})
}

func TestAppendSequencesAreIndependentPerRoom(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		a := appendN(t, s, "room-a", 3)
		b := appendN(t, s, "room-b", 1)
		assert.Equal(t, a[0].ID, b[0].ID, "each room counts from its own sequence")
	})
}

func TestHistoryNewestFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		msgs := appendN(t, s, "room-a", 10)

		page, err := s.History(context.Background(), "room-a", 4, "")
		require.NoError(t, err)
		require.Len(t, page, 4)
		assert.Equal(t, msgs[9].ID, page[0].ID)
		assert.Equal(t, msgs[6].ID, page[3].ID)
	})
}

func TestHistoryBeforeCursorPagesBackward(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		msgs := appendN(t, s, "room-a", 10)

		first, err := s.History(context.Background(), "room-a", 4, "")
		require.NoError(t, err)
		oldest := first[len(first)-1]

		second, err := s.History(context.Background(), "room-a", 4, oldest.ID)
		require.NoError(t, err)
		require.Len(t, second, 4)
		assert.Equal(t, msgs[5].ID, second[0].ID, "page two starts strictly before the cursor")

		// Walking back past the beginning yields a short, then empty, page.
		third, err := s.History(context.Background(), "room-a", 4, second[len(second)-1].ID)
		require.NoError(t, err)
		require.Len(t, third, 2)
		assert.Equal(t, msgs[0].ID, third[1].ID)

		empty, err := s.History(context.Background(), "room-a", 4, third[len(third)-1].ID)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestHistoryUnknownCursor(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		appendN(t, s, "room-a", 3)

		_, err := s.History(context.Background(), "room-a", 4, "ffffffffffffffff")
		assert.ErrorIs(t, err, ErrUnknownMessage)

		// A cursor from another room is just as unknown here.
		require.NoError(t, s.Put(context.Background(), "room-b", models.Message{ID: "00000000000000aa", Content: "elsewhere"}))
		_, err = s.History(context.Background(), "room-a", 4, "00000000000000aa")
		assert.ErrorIs(t, err, ErrUnknownMessage)
	})
}

func TestPutStoresRelayedMessageOnce(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		relayed := models.Message{ID: "0000000000000005", UserID: "u2", Username: "bob", Content: "from sibling"}
		require.NoError(t, s.Put(context.Background(), "room-a", relayed))
		require.NoError(t, s.Put(context.Background(), "room-a", relayed), "redelivery is a no-op")

		page, err := s.History(context.Background(), "room-a", 10, "")
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, relayed.ID, page[0].ID)
		assert.Equal(t, "room-a", page[0].RoomID)
		assert.False(t, page[0].Timestamp.IsZero())
	})
}

func TestPutAdvancesLocalSequence(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		local := appendN(t, s, "room-a", 2)
		require.NoError(t, s.Put(context.Background(), "room-a", models.Message{ID: "0000000000000005", Content: "relayed"}))

		// The next local append continues past the relayed id instead of
		// reusing it.
		more := appendN(t, s, "room-a", 1)
		assert.Greater(t, more[0].ID, "0000000000000005")

		page, err := s.History(context.Background(), "room-a", 10, "")
		require.NoError(t, err)
		require.Len(t, page, 4)
		assert.Equal(t, more[0].ID, page[0].ID)
		assert.Equal(t, local[0].ID, page[3].ID)
	})
}

func TestPutRejectsMalformedID(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		err := s.Put(context.Background(), "room-a", models.Message{ID: "not-hex", Content: "x"})
		assert.Error(t, err)
		err = s.Put(context.Background(), "room-a", models.Message{Content: "no id"})
		assert.Error(t, err)
	})
}

func TestHistoryEmptyRoom(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		page, err := s.History(context.Background(), "no-such-room", 50, "")
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestHistoryClampsLimit(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		appendN(t, s, "room-a", MaxHistoryLimit+20)

		page, err := s.History(context.Background(), "room-a", 0, "")
		require.NoError(t, err)
		assert.Len(t, page, DefaultHistoryLimit)

		page, err = s.History(context.Background(), "room-a", 10_000, "")
		require.NoError(t, err)
		assert.Len(t, page, MaxHistoryLimit)
	})
}

func TestMarkReadWatermarks(t *testing.T) {
	s, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	msgs := appendN(t, s, "room-a", 3)

	require.NoError(t, s.MarkRead(context.Background(), "room-a", "u1", msgs[1].ID))
	wm, err := s.Watermark("room-a", "u1")
	require.NoError(t, err)
	assert.Equal(t, msgs[1].ID, wm)

	// Empty uptoID advances to the newest message.
	require.NoError(t, s.MarkRead(context.Background(), "room-a", "u1", ""))
	wm, err = s.Watermark("room-a", "u1")
	require.NoError(t, err)
	assert.Equal(t, msgs[2].ID, wm)

	// Unknown target is rejected without moving the watermark.
	err = s.MarkRead(context.Background(), "room-a", "u1", "ffffffffffffffff")
	assert.ErrorIs(t, err, ErrUnknownMessage)
	wm, err = s.Watermark("room-a", "u1")
	require.NoError(t, err)
	assert.Equal(t, msgs[2].ID, wm)
}

func TestMarkReadEmptyRoomIsNoop(t *testing.T) {
	eachStore(t, func(t *testing.T, s storeUnderTest) {
		assert.NoError(t, s.MarkRead(context.Background(), "room-a", "u1", ""))
	})
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	msgs := appendN(t, s, "room-a", 3)
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	page, err := s.History(context.Background(), "room-a", 50, "")
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, msgs[2].Content, page[0].Content)

	// The sequence counter survives too; new ids continue past the old ones.
	more := appendN(t, s, "room-a", 1)
	assert.Greater(t, more[0].ID, msgs[2].ID)
}

func TestResilientStoreRetriesAppend(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failFirst: 2}
	s := NewResilientStore(inner, ResilientConfig{
		AppendRetries:    2,
		RetryDelay:       time.Millisecond,
		FailureThreshold: 10,
		OpenTimeout:      time.Second,
	})

	msg, err := s.Append(context.Background(), "room-a", models.Message{Content: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, 3, inner.appendCalls)
}

func TestResilientStoreGivesUpAfterRetries(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failFirst: 100}
	s := NewResilientStore(inner, ResilientConfig{
		AppendRetries:    1,
		RetryDelay:       time.Millisecond,
		FailureThreshold: 10,
		OpenTimeout:      time.Second,
	})

	_, err := s.Append(context.Background(), "room-a", models.Message{Content: "hi"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, inner.appendCalls)
}

func TestResilientStoreOpensBreaker(t *testing.T) {
	inner := NewMemoryStore()
	inner.FailReads = true
	s := NewResilientStore(inner, ResilientConfig{
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	})

	for i := 0; i < 3; i++ {
		_, err := s.History(context.Background(), "room-a", 50, "")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, "open", s.State())

	// Once open, even a healthy backend is not reached until the timeout.
	inner.FailReads = false
	_, err := s.History(context.Background(), "room-a", 50, "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestResilientStoreBadCursorDoesNotTrip(t *testing.T) {
	s := NewResilientStore(NewMemoryStore(), DefaultResilientConfig())
	appendN(t, s, "room-a", 1)

	for i := 0; i < 10; i++ {
		err := s.MarkRead(context.Background(), "room-a", "u1", "ffffffffffffffff")
		assert.ErrorIs(t, err, ErrUnknownMessage)
		_, err = s.History(context.Background(), "room-a", 4, "ffffffffffffffff")
		assert.ErrorIs(t, err, ErrUnknownMessage, "cursor errors pass through the breaker unwrapped")
	}
	assert.Equal(t, "closed", s.State())
}

// flakyStore fails its first failFirst Append calls, then recovers.
type flakyStore struct {
	*MemoryStore
	failFirst   int
	appendCalls int
}

func (f *flakyStore) Append(ctx context.Context, roomID string, msg models.Message) (models.Message, error) {
	f.appendCalls++
	if f.appendCalls <= f.failFirst {
		return models.Message{}, ErrUnavailable
	}
	return f.MemoryStore.Append(ctx, roomID, msg)
}
