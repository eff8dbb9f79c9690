// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package broadcast fans frames out to room members with strict per-room
// ordering and bounded per-session buffering. A slow consumer loses frames
// (newest first) instead of stalling its room; the loss is surfaced to that
// consumer as a gap marker once its queue drains.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/hexwave/hexwave/internal/metrics"
)

// Outbox is one session's bounded outbound frame queue. Enqueue never
// blocks: when the queue is full the frame is dropped and counted, and the
// writer emits a single gap marker after it catches up.
type Outbox struct {
	mu      sync.RWMutex
	ch      chan []byte
	closed  bool
	dropped atomic.Uint64
}

// NewOutbox creates an Outbox holding at most size frames.
func NewOutbox(size int) *Outbox {
	if size < 1 {
		size = 1
	}
	return &Outbox{ch: make(chan []byte, size)}
}

// Enqueue offers a frame to the queue. Returns false if the frame was
// dropped (queue full) or the outbox is closed.
func (o *Outbox) Enqueue(frame []byte) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return false
	}
	select {
	case o.ch <- frame:
		return true
	default:
		o.dropped.Add(1)
		metrics.MessagesDropped.Inc()
		return false
	}
}

// Frames is the channel the session's write pump consumes. It is closed
// when the outbox closes.
func (o *Outbox) Frames() <-chan []byte {
	return o.ch
}

// Len reports the number of buffered frames.
func (o *Outbox) Len() int {
	return len(o.ch)
}

// TakeGap returns the number of frames dropped since the last call and
// resets the counter. The write pump calls this after draining the queue
// and, on a non-zero result, emits one gap frame.
func (o *Outbox) TakeGap() uint64 {
	return o.dropped.Swap(0)
}

// Close stops the outbox. Pending frames remain readable; further Enqueue
// calls return false.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}
