// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package config loads layered configuration: built-in defaults, then an
// optional YAML file, then environment variables. Validation runs after the
// layers merge so a bad override fails at startup, not mid-request.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full server configuration tree.
type Config struct {
	Server   ServerConfig   `koanf:"server" validate:"required"`
	Auth     AuthConfig     `koanf:"auth" validate:"required"`
	Chat     ChatConfig     `koanf:"chat" validate:"required"`
	Store    StoreConfig    `koanf:"store" validate:"required"`
	NATS     NATSConfig     `koanf:"nats"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=1000000000"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=1000000000"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1000000000"`
}

// AuthConfig covers token verification.
type AuthConfig struct {
	// JWTSecret must match the issuing auth service. Minimum 32 characters;
	// empty fails startup rather than running open.
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=32"`
}

// ChatConfig tunes the chat core.
type ChatConfig struct {
	// DefaultResolution is the grid resolution used when a join omits one.
	DefaultResolution int `koanf:"default_resolution" validate:"min=0,max=15"`
	// HistoryLimit is the page size sent on join.
	HistoryLimit int `koanf:"history_limit" validate:"min=1,max=100"`
	// GracePeriod is how long an empty room lingers before eviction.
	GracePeriod time.Duration `koanf:"grace_period" validate:"min=1000000000"`
	// QueueSize bounds each session's outbound frame queue.
	QueueSize int `koanf:"queue_size" validate:"min=8"`
	// TypingTTL is how long a typing indicator lives without renewal.
	TypingTTL time.Duration `koanf:"typing_ttl" validate:"min=1000000000"`
	// MemberCap limits concurrent members per room; 0 disables the cap.
	MemberCap int `koanf:"member_cap" validate:"min=0"`
	// MessageRate is the sustained messages-per-second allowance per
	// session; MessageBurst is the bucket size.
	MessageRate  float64 `koanf:"message_rate" validate:"min=0"`
	MessageBurst int     `koanf:"message_burst" validate:"min=1"`
	// NeighborRings is how many hex rings of adjacent cells are reported
	// on cell joins.
	NeighborRings int `koanf:"neighbor_rings" validate:"min=1,max=3"`
	// MaxContentLength bounds a single message body in bytes.
	MaxContentLength int `koanf:"max_content_length" validate:"min=1"`
}

// StoreConfig covers message persistence.
type StoreConfig struct {
	// Backend is "badger" or "memory".
	Backend string `koanf:"backend" validate:"oneof=badger memory"`
	// Path is the BadgerDB directory; empty means in-memory Badger.
	Path string `koanf:"path"`
	// AppendRetries and RetryDelay bound the write retry loop.
	AppendRetries int           `koanf:"append_retries" validate:"min=0,max=10"`
	RetryDelay    time.Duration `koanf:"retry_delay" validate:"min=1000000"`
	// BreakerThreshold consecutive failures open the circuit breaker,
	// which stays open for BreakerTimeout.
	BreakerThreshold int           `koanf:"breaker_threshold" validate:"min=1"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout" validate:"min=1000000000"`
}

// NATSConfig covers the optional cross-instance relay.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	// EmbeddedServer runs an in-process NATS server instead of dialing URL.
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	// InstanceID distinguishes this process on the relay topic; empty
	// generates a random id at startup.
	InstanceID string `koanf:"instance_id"`
}

// SecurityConfig covers the HTTP edge.
type SecurityConfig struct {
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig covers log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Default returns the built-in defaults, overridden by file and env layers.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret: "",
		},
		Chat: ChatConfig{
			DefaultResolution: 8,
			HistoryLimit:      50,
			GracePeriod:       5 * time.Minute,
			QueueSize:         256,
			TypingTTL:         6 * time.Second,
			MemberCap:         500,
			MessageRate:       5,
			MessageBurst:      10,
			NeighborRings:     1,
			MaxContentLength:  4096,
		},
		Store: StoreConfig{
			Backend:          "badger",
			Path:             "/data/hexwave/messages",
			AppendRetries:    2,
			RetryDelay:       100 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			StoreDir:       "/data/hexwave/nats",
			InstanceID:     "",
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// In-memory Badger loses history on restart; reject the combination
	// only when the relay is on, where instances share durable state.
	if c.Store.Backend == "badger" && c.Store.Path == "" && c.NATS.Enabled {
		return fmt.Errorf("config: store.path required when nats relay is enabled")
	}
	return nil
}
