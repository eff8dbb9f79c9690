// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package api exposes the HTTP surface: the websocket endpoint, a small
// REST read API over rooms and cells, health probes, and Prometheus
// metrics.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hexwave/hexwave/internal/config"
	"github.com/hexwave/hexwave/internal/identity"
	"github.com/hexwave/hexwave/internal/room"
	"github.com/hexwave/hexwave/internal/session"
	"github.com/hexwave/hexwave/internal/store"
)

// Router builds the HTTP handler tree.
type Router struct {
	manager  *session.Manager
	registry *room.Registry
	store    store.MessageStore
	identity identity.Provider
	cfg      config.SecurityConfig
	chatCfg  config.ChatConfig
	ready    func() bool
}

// NewRouter wires a Router. ready reports readiness for the health probe;
// nil means always ready.
func NewRouter(manager *session.Manager, registry *room.Registry, st store.MessageStore, idp identity.Provider, secCfg config.SecurityConfig, chatCfg config.ChatConfig, ready func() bool) *Router {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Router{
		manager:  manager,
		registry: registry,
		store:    st,
		identity: idp,
		cfg:      secCfg,
		chatCfg:  chatCfg,
		ready:    ready,
	}
}

// Handler assembles the chi router.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogging())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", rt.handleHealthLive)
		r.Get("/ready", rt.handleHealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if rt.cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))
		}
		r.Use(metricsMiddleware)

		// The websocket endpoint authenticates in-band on the first join
		// frame; everything else takes a bearer token.
		r.Get("/ws", rt.manager.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(rt.identity))
			r.Get("/cells/resolve", rt.handleResolveCell)
			r.Get("/rooms/{roomID}/messages", rt.handleRoomMessages)
			r.Get("/rooms/{roomID}/neighbors", rt.handleRoomNeighbors)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
