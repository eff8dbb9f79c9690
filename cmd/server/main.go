// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package main is the entry point for the Hexwave server.
//
// Hexwave is a location-scoped real-time chat backend: clients join the
// chat room covering their current position on a hexagonal grid, or a
// two-party direct conversation, over a websocket.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults / config.yaml / environment (Koanf v2)
//  2. Message store: BadgerDB with retry + circuit-breaker wrapper
//  3. Room registry: live rooms with grace-period eviction
//  4. NATS relay (optional): cross-instance message fan-out
//  5. HTTP server: websocket endpoint, REST read API, health, metrics
//  6. Supervisor tree: data / messaging / api layers under suture
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults. JWT_SECRET is required and must match the issuing
// auth service.
//
// # Multi-Instance Deployments
//
// A single instance needs no relay. To run several instances behind a load
// balancer, enable NATS (NATS_ENABLED=true, NATS_URL=...) so messages
// appended on one instance reach members connected to the others. Typing
// and presence stay instance-local.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: it stops
// accepting connections, closes every live session, drains in-flight
// requests, and flushes the store.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hexwave/hexwave/internal/api"
	"github.com/hexwave/hexwave/internal/config"
	"github.com/hexwave/hexwave/internal/identity"
	"github.com/hexwave/hexwave/internal/logging"
	"github.com/hexwave/hexwave/internal/relay"
	"github.com/hexwave/hexwave/internal/room"
	"github.com/hexwave/hexwave/internal/session"
	"github.com/hexwave/hexwave/internal/store"
	"github.com/hexwave/hexwave/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("store_backend", cfg.Store.Backend).
		Bool("relay_enabled", cfg.NATS.Enabled).
		Int("default_resolution", cfg.Chat.DefaultResolution).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === MESSAGE STORE ===

	var backend store.MessageStore
	var badgerStore *store.BadgerStore
	switch cfg.Store.Backend {
	case "memory":
		backend = store.NewMemoryStore()
		logging.Warn().Msg("In-memory message store: history is lost on restart")
	default:
		badgerStore, err = store.OpenBadgerStore(cfg.Store.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open message store")
		}
		defer func() {
			if err := badgerStore.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing message store")
			}
		}()
		backend = badgerStore
	}
	messageStore := store.NewResilientStore(backend, store.ResilientConfig{
		AppendRetries:    cfg.Store.AppendRetries,
		RetryDelay:       cfg.Store.RetryDelay,
		FailureThreshold: uint32(cfg.Store.BreakerThreshold),
		OpenTimeout:      cfg.Store.BreakerTimeout,
	})

	// === ROOMS AND SESSIONS ===

	registry := room.NewRegistry(room.Config{
		GracePeriod: cfg.Chat.GracePeriod,
		MemberCap:   cfg.Chat.MemberCap,
		TypingTTL:   cfg.Chat.TypingTTL,
	})

	idp, err := identity.NewJWTProvider(cfg.Auth.JWTSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token verification")
	}

	// === NATS RELAY (OPTIONAL) ===

	var publisher session.EventPublisher
	var chatRelay *relay.Relay
	if cfg.NATS.Enabled {
		url := cfg.NATS.URL
		if cfg.NATS.EmbeddedServer {
			ns, err := relay.StartEmbeddedServer(cfg.NATS.StoreDir)
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
			}
			defer func() {
				if err := ns.Shutdown(context.Background()); err != nil {
					logging.Error().Err(err).Msg("Error stopping embedded NATS server")
				}
			}()
			url = ns.ClientURL()
		}

		pub, sub, err := relay.NewNATSPubSub(url)
		if err != nil {
			logging.Fatal().Err(err).Str("url", url).Msg("Failed to connect to NATS")
		}
		chatRelay = relay.New(cfg.NATS.InstanceID, pub, sub, registry, messageStore)
		defer func() {
			if err := chatRelay.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing relay")
			}
		}()
		publisher = chatRelay
		logging.Info().Str("instance_id", chatRelay.InstanceID()).Msg("NATS relay connected")
	}

	core := session.NewCore(registry, messageStore, idp, publisher, session.Config{
		DefaultResolution: cfg.Chat.DefaultResolution,
		HistoryLimit:      cfg.Chat.HistoryLimit,
		QueueSize:         cfg.Chat.QueueSize,
		NeighborRings:     cfg.Chat.NeighborRings,
		MessageRate:       cfg.Chat.MessageRate,
		MessageBurst:      cfg.Chat.MessageBurst,
		MaxContentLength:  cfg.Chat.MaxContentLength,
	})
	manager := session.NewManager(core, nil)
	defer manager.Shutdown()

	// === HTTP SERVER ===

	router := api.NewRouter(manager, registry, messageStore, idp, cfg.Security, cfg.Chat, nil)
	server := api.NewServer(cfg.Server, router.Handler())

	// === SUPERVISOR TREE ===

	treeLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	tree := supervisor.NewTree(treeLogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	if badgerStore != nil {
		tree.AddDataService(supervisor.NewStoreGC(badgerStore))
	}
	tree.AddMessagingService(room.NewJanitor(registry, cfg.Chat.GracePeriod))
	if chatRelay != nil {
		tree.AddMessagingService(chatRelay)
	}
	tree.AddAPIService(server)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}
