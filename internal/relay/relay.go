// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package relay fans chat messages out across server instances. Every
// instance publishes its locally-appended messages to one shared topic;
// sibling events are persisted to the local store under their origin ids
// and broadcast to local rooms, so joins and history pages behave the same
// on every instance. Events carry the origin instance id; an instance skips
// its own events, which it already stored and broadcast before publishing.
package relay

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/hexwave/hexwave/internal/logging"
	"github.com/hexwave/hexwave/internal/metrics"
	"github.com/hexwave/hexwave/internal/models"
	"github.com/hexwave/hexwave/internal/room"
	"github.com/hexwave/hexwave/internal/wire"
)

// Topic is the shared subject for chat events.
const Topic = "chat.events"

// Event kinds.
const KindMessage = "message"

// Event is the cross-instance payload.
type Event struct {
	Origin  string         `json:"origin"`
	Kind    string         `json:"kind"`
	RoomID  string         `json:"room_id"`
	Message models.Message `json:"message"`
}

// MessageSink is the slice of the message store the relay writes through:
// sibling messages land in the local store under their origin-assigned ids,
// so a history page served here covers messages appended anywhere.
type MessageSink interface {
	Put(ctx context.Context, roomID string, msg models.Message) error
}

// Relay connects a room registry and a message sink to a watermill pub/sub
// pair. It satisfies session.EventPublisher on the publish side and
// suture.Service on the consume side.
type Relay struct {
	instanceID string
	pub        message.Publisher
	sub        message.Subscriber
	registry   *room.Registry
	sink       MessageSink
}

// New creates a Relay over an existing pub/sub pair. instanceID must be
// unique per process; empty gets a random one.
func New(instanceID string, pub message.Publisher, sub message.Subscriber, registry *room.Registry, sink MessageSink) *Relay {
	if instanceID == "" {
		instanceID = watermill.NewUUID()
	}
	return &Relay{instanceID: instanceID, pub: pub, sub: sub, registry: registry, sink: sink}
}

// InstanceID returns this relay's origin id.
func (r *Relay) InstanceID() string { return r.instanceID }

// PublishMessage implements session.EventPublisher.
func (r *Relay) PublishMessage(_ context.Context, roomID string, msg models.Message) error {
	data, err := json.Marshal(Event{
		Origin:  r.instanceID,
		Kind:    KindMessage,
		RoomID:  roomID,
		Message: msg,
	})
	if err != nil {
		return fmt.Errorf("relay: marshal event: %w", err)
	}
	if err := r.pub.Publish(Topic, message.NewMessage(watermill.NewUUID(), data)); err != nil {
		return fmt.Errorf("relay: publish: %w", err)
	}
	metrics.RelayPublished.Inc()
	return nil
}

// String names the service in supervisor logs.
func (r *Relay) String() string { return "nats-relay" }

// Serve consumes sibling events until ctx is canceled. Implements
// suture.Service; a subscribe failure returns the error and lets the
// supervisor restart with backoff.
func (r *Relay) Serve(ctx context.Context) error {
	messages, err := r.sub.Subscribe(ctx, Topic)
	if err != nil {
		metrics.RelayErrors.WithLabelValues("subscribe").Inc()
		return fmt.Errorf("relay: subscribe %s: %w", Topic, err)
	}
	logging.Info().Str("instance_id", r.instanceID).Msg("relay subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("relay: subscription closed")
			}
			r.apply(ctx, msg)
		}
	}
}

// apply handles one event. Events are acked unconditionally: a malformed
// or unroutable event will not become deliverable by redelivery.
func (r *Relay) apply(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		metrics.RelayErrors.WithLabelValues("decode").Inc()
		logging.Warn().Err(err).Msg("relay: malformed event")
		return
	}

	if ev.Origin == r.instanceID {
		metrics.RelaySkipped.Inc()
		return
	}
	if ev.Kind != KindMessage {
		metrics.RelaySkipped.Inc()
		return
	}

	// Persist before delivery, even with no local members: a session that
	// joins this room here later must see sibling messages in its history
	// page. Put is idempotent per id, so a redelivered event is harmless.
	if err := r.sink.Put(ctx, ev.RoomID, ev.Message); err != nil {
		metrics.RelayErrors.WithLabelValues("persist").Inc()
		logging.Warn().Err(err).Str("room_id", ev.RoomID).Msg("relay: persist failed")
	}

	rm := r.registry.Get(ev.RoomID)
	if rm == nil {
		// No local members in that room; nothing to broadcast.
		metrics.RelaySkipped.Inc()
		return
	}
	if err := rm.Broadcast(wire.MustNew(wire.TypeNewMessage, wire.NewMessage{Message: ev.Message})); err != nil {
		logging.Error().Err(err).Str("room_id", ev.RoomID).Msg("relay: local broadcast failed")
		return
	}
	metrics.RelayConsumed.Inc()
}

// Close releases the pub/sub pair.
func (r *Relay) Close() error {
	pubErr := r.pub.Close()
	subErr := r.sub.Close()
	if pubErr != nil {
		return pubErr
	}
	return subErr
}
