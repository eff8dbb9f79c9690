// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package supervisor

import (
	"context"

	"github.com/hexwave/hexwave/internal/store"
)

// StoreGC runs Badger's value-log garbage collection as a supervised
// service.
type StoreGC struct {
	store *store.BadgerStore
}

// NewStoreGC wraps a BadgerStore for supervision.
func NewStoreGC(s *store.BadgerStore) *StoreGC {
	return &StoreGC{store: s}
}

// String names the service in supervisor logs.
func (g *StoreGC) String() string { return "badger-gc" }

// Serve implements suture.Service.
func (g *StoreGC) Serve(ctx context.Context) error {
	return g.store.RunGC(ctx)
}
