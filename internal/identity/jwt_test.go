// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTRoundTrip(t *testing.T) {
	p, err := NewJWTProvider(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	token, err := p.Issue(Identity{UserID: "u1", Username: "alice"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	id, err := p.Verify(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "u1" || id.Username != "alice" {
		t.Errorf("identity = %+v", id)
	}
}

func TestJWTExpired(t *testing.T) {
	p, err := NewJWTProvider(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	token, err := p.Issue(Identity{UserID: "u1", Username: "alice"}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestJWTTamperedToken(t *testing.T) {
	p, _ := NewJWTProvider(testSecret)
	token, _ := p.Issue(Identity{UserID: "u1", Username: "alice"}, time.Hour)

	tampered := token[:len(token)-2] + "xx"
	if _, err := p.Verify(context.Background(), tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered token: err = %v, want ErrInvalidToken", err)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	a, _ := NewJWTProvider(testSecret)
	b, _ := NewJWTProvider(strings.Repeat("x", 32))

	token, _ := a.Issue(Identity{UserID: "u1"}, time.Hour)
	if _, err := b.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("cross-secret token: err = %v, want ErrInvalidToken", err)
	}
}

func TestJWTSecretTooShort(t *testing.T) {
	if _, err := NewJWTProvider("short"); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestStaticProvider(t *testing.T) {
	p := Static{"tok-a": {UserID: "u1", Username: "alice"}}

	id, err := p.Verify(context.Background(), "tok-a")
	if err != nil || id.Username != "alice" {
		t.Errorf("Verify = %+v, %v", id, err)
	}
	if _, err := p.Verify(context.Background(), "nope"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unknown token: err = %v, want ErrInvalidToken", err)
	}
}
