// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package identity verifies bearer tokens presented at join time. Token
// issuance and rotation belong to the upstream auth service; this package
// only validates what that service signed.
package identity

import (
	"context"
	"errors"
)

// ErrInvalidToken reports a token that is missing, malformed, tampered with,
// or expired. Authentication failures are terminal for a session.
var ErrInvalidToken = errors.New("identity: invalid or expired token")

// Provider validates a bearer token and returns the stable user identity
// behind it.
type Provider interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Identity is the verified identity of a connected user.
type Identity struct {
	UserID   string
	Username string
}

// Static is a fixed token-to-identity table. Test double for Provider.
type Static map[string]Identity

// Verify implements Provider.
func (s Static) Verify(_ context.Context, token string) (Identity, error) {
	id, ok := s[token]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}
