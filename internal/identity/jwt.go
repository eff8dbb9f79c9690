// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims the upstream auth service issues.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTProvider validates HMAC-SHA256 signed tokens from the auth service.
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider creates a JWT-backed Provider. The secret must match the
// issuing service and be at least 32 bytes.
func NewJWTProvider(secret string) (*JWTProvider, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("identity: JWT secret must be at least 32 characters")
	}
	return &JWTProvider{secret: []byte(secret)}, nil
}

// Verify implements Provider. It checks the signature, the signing algorithm
// (HS256 only, preventing algorithm confusion), and the time-based claims.
func (p *JWTProvider) Verify(_ context.Context, tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}

	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// Issue signs a token for the given identity. The server never issues tokens
// in production; this exists for tests and local development tooling.
func (p *JWTProvider) Issue(id Identity, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:   id.UserID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}
