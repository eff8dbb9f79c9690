// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package broadcast

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexwave/hexwave/internal/wire"
)

func textFrame(i int) wire.Frame {
	return wire.MustNew(wire.TypeNewMessage, map[string]int{"n": i})
}

func drain(out *Outbox) [][]byte {
	var got [][]byte
	for {
		select {
		case f := <-out.Frames():
			got = append(got, f)
		default:
			return got
		}
	}
}

func TestOutboxEnqueueDequeue(t *testing.T) {
	out := NewOutbox(4)
	assert.True(t, out.Enqueue([]byte("a")))
	assert.True(t, out.Enqueue([]byte("b")))
	assert.Equal(t, 2, out.Len())

	got := drain(out)
	require.Len(t, got, 2)
	assert.Equal(t, "a", string(got[0]))
	assert.Equal(t, "b", string(got[1]))
	assert.Zero(t, out.TakeGap())
}

func TestOutboxDropsNewestOnOverflow(t *testing.T) {
	out := NewOutbox(3)
	for i := 0; i < 10; i++ {
		out.Enqueue([]byte(fmt.Sprintf("%d", i)))
	}

	// The three oldest frames survive; the seven newest were dropped.
	got := drain(out)
	require.Len(t, got, 3)
	assert.Equal(t, "0", string(got[0]))
	assert.Equal(t, "2", string(got[2]))
	assert.Equal(t, uint64(7), out.TakeGap())
	assert.Zero(t, out.TakeGap(), "gap counter resets after TakeGap")
}

func TestOutboxCloseStopsEnqueue(t *testing.T) {
	out := NewOutbox(4)
	out.Enqueue([]byte("a"))
	out.Close()
	out.Close() // idempotent

	assert.False(t, out.Enqueue([]byte("b")))

	// Pending frames remain readable, then the channel reports closed.
	f, ok := <-out.Frames()
	require.True(t, ok)
	assert.Equal(t, "a", string(f))
	_, ok = <-out.Frames()
	assert.False(t, ok)
}

func TestGroupBroadcastReachesAllMembers(t *testing.T) {
	g := NewGroup()
	a, b := NewOutbox(8), NewOutbox(8)
	g.Add("a", a)
	g.Add("b", b)

	require.NoError(t, g.Broadcast(textFrame(1)))
	require.NoError(t, g.Broadcast(textFrame(2)))

	for _, out := range []*Outbox{a, b} {
		got := drain(out)
		require.Len(t, got, 2)
	}
}

func TestGroupBroadcastExcept(t *testing.T) {
	g := NewGroup()
	a, b := NewOutbox(8), NewOutbox(8)
	g.Add("a", a)
	g.Add("b", b)

	require.NoError(t, g.BroadcastExcept(textFrame(1), "a"))
	assert.Empty(t, drain(a))
	assert.Len(t, drain(b), 1)
}

func TestGroupRemoveStopsDelivery(t *testing.T) {
	g := NewGroup()
	a := NewOutbox(8)
	g.Add("a", a)
	g.Remove("a")

	require.NoError(t, g.Broadcast(textFrame(1)))
	assert.Empty(t, drain(a))
	assert.Zero(t, g.Len())
}

// A slow member must not affect what fast members receive, and must see a
// contiguous prefix of the room's frames followed by one gap.
func TestSlowConsumerIsolation(t *testing.T) {
	g := NewGroup()
	fast := NewOutbox(2048)
	slow := NewOutbox(8)
	g.Add("fast", fast)
	g.Add("slow", slow)

	const burst = 1000
	for i := 0; i < burst; i++ {
		require.NoError(t, g.Broadcast(textFrame(i)))
	}

	assert.Len(t, drain(fast), burst)

	got := drain(slow)
	require.Len(t, got, 8, "slow member keeps only its queue capacity")
	assert.Equal(t, uint64(burst-8), slow.TakeGap())
}

// Frames broadcast concurrently with member churn must never panic or
// deadlock, and members present for the whole run see every frame.
func TestConcurrentBroadcastAndChurn(t *testing.T) {
	g := NewGroup()
	stable := NewOutbox(4096)
	g.Add("stable", stable)

	var wg sync.WaitGroup
	const frames = 500

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			_ = g.Broadcast(textFrame(i))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			id := fmt.Sprintf("churn-%d", i)
			out := NewOutbox(4)
			g.Add(id, out)
			g.Remove(id)
			out.Close()
		}
	}()

	wg.Wait()
	assert.Len(t, drain(stable), frames)
}
