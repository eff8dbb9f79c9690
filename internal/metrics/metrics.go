// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package metrics exposes Prometheus instrumentation for the chat core:
// session and room population, message throughput, broadcast backpressure,
// store health, and the cross-instance relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session Metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_sessions",
			Help: "Current number of connected WebSocket sessions",
		},
	)

	SessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_total",
			Help: "Total number of WebSocket sessions accepted",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_auth_failures_total",
			Help: "Total number of sessions rejected for invalid tokens",
		},
	)

	JoinDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_join_duration_seconds",
			Help:    "Time from join frame receipt to room_joined delivery",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Room Metrics
	ActiveRooms = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_active_rooms",
			Help: "Current number of live rooms",
		},
		[]string{"kind"}, // "cell", "direct"
	)

	RoomEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_room_evictions_total",
			Help: "Total number of rooms evicted after their grace period",
		},
	)

	RoomJoinRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_room_join_rejections_total",
			Help: "Total number of join attempts rejected",
		},
		[]string{"reason"}, // "full", "invalid", "auth"
	)

	// Message Metrics
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_received_total",
			Help: "Total number of chat messages received from clients",
		},
	)

	MessagesBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_broadcast_total",
			Help: "Total number of frames fanned out to room members",
		},
	)

	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_dropped_total",
			Help: "Total number of frames dropped on full per-session queues",
		},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_rejections_total",
			Help: "Total number of messages rejected by the per-session rate limit",
		},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_store_operation_duration_seconds",
			Help:    "Duration of message store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "append", "history", "mark_read"
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_store_errors_total",
			Help: "Total number of failed message store operations",
		},
		[]string{"operation"},
	)

	StoreBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_store_breaker_state",
			Help: "Message store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Relay Metrics
	RelayPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_published_total",
			Help: "Total number of events published to the cross-instance relay",
		},
	)

	RelayConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_consumed_total",
			Help: "Total number of relay events applied from other instances",
		},
	)

	RelaySkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_skipped_total",
			Help: "Total number of relay events skipped (own origin or unknown room)",
		},
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_errors_total",
			Help: "Total number of relay failures",
		},
		[]string{"stage"}, // "publish", "decode", "subscribe"
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_api_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordStoreOperation records one store call with its outcome.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(operation).Inc()
	}
}

// SetBreakerState maps a gobreaker state name onto the gauge.
func SetBreakerState(state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	StoreBreakerState.Set(v)
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
