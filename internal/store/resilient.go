// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hexwave/hexwave/internal/logging"
	"github.com/hexwave/hexwave/internal/models"
)

// ResilientConfig tunes the circuit breaker and retry behavior of
// ResilientStore.
type ResilientConfig struct {
	// AppendRetries is the number of additional Append attempts after the
	// first failure, each separated by RetryDelay.
	AppendRetries int
	RetryDelay    time.Duration

	// FailureThreshold is the number of consecutive backend failures that
	// opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultResilientConfig returns production defaults.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		AppendRetries:    2,
		RetryDelay:       100 * time.Millisecond,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// ResilientStore wraps a MessageStore with a circuit breaker and bounded
// Append retries. While the breaker is open every call fails fast with
// ErrUnavailable, which the session layer surfaces as degraded behavior
// (send failures and empty history with a warning) instead of stalled
// connections.
type ResilientStore struct {
	inner MessageStore
	cfg   ResilientConfig
	cb    *gobreaker.CircuitBreaker[any]
}

// NewResilientStore wraps inner with breaker and retry protection.
func NewResilientStore(inner MessageStore, cfg ResilientConfig) *ResilientStore {
	if cfg.AppendRetries < 0 {
		cfg.AppendRetries = 0
	}

	settings := gobreaker.Settings{
		Name:    "message-store",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state change")
		},
		// Bad cursors are caller errors, not backend failures; they must not
		// trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnknownMessage)
		},
	}

	return &ResilientStore{
		inner: inner,
		cfg:   cfg,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Append implements MessageStore. A failed attempt is retried up to
// cfg.AppendRetries times before the error is reported, unless the breaker
// has opened in the meantime.
func (s *ResilientStore) Append(ctx context.Context, roomID string, msg models.Message) (models.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.AppendRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return models.Message{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		out, err := s.cb.Execute(func() (any, error) {
			return s.inner.Append(ctx, roomID, msg)
		})
		if err == nil {
			return out.(models.Message), nil
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
	}
	return models.Message{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Put implements MessageStore. Relayed writes go through the breaker and are
// not retried.
func (s *ResilientStore) Put(ctx context.Context, roomID string, msg models.Message) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.inner.Put(ctx, roomID, msg)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// History implements MessageStore. Reads are not retried; the caller degrades
// to an empty page with a warning frame.
func (s *ResilientStore) History(ctx context.Context, roomID string, limit int, before string) ([]models.Message, error) {
	out, err := s.cb.Execute(func() (any, error) {
		return s.inner.History(ctx, roomID, limit, before)
	})
	if err != nil {
		if errors.Is(err, ErrUnknownMessage) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if out == nil {
		return nil, nil
	}
	return out.([]models.Message), nil
}

// MarkRead implements MessageStore.
func (s *ResilientStore) MarkRead(ctx context.Context, roomID, userID, uptoID string) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.inner.MarkRead(ctx, roomID, userID, uptoID)
	})
	if err != nil {
		if errors.Is(err, ErrUnknownMessage) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// State reports the breaker state for health checks and metrics.
func (s *ResilientStore) State() string {
	return s.cb.State().String()
}
