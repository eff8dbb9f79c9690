// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/hexwave/hexwave/internal/logging"
)

// NATSConfig covers the relay's transport.
type NATSConfig struct {
	URL string
	// Embedded runs an in-process NATS server and ignores URL.
	Embedded bool
	StoreDir string
}

// EmbeddedServer wraps an in-process NATS server for single-binary
// deployments that still want the relay path exercised.
type EmbeddedServer struct {
	server *natsserver.Server
}

// StartEmbeddedServer starts an in-process NATS server and waits for it to
// accept connections.
func StartEmbeddedServer(storeDir string) (*EmbeddedServer, error) {
	opts := &natsserver.Options{
		ServerName: "hexwave-relay",
		Host:       "127.0.0.1",
		Port:       -1, // pick a free port
		StoreDir:   storeDir,
		NoLog:      true,
		MaxPayload: 1 << 20,
	}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("relay: create embedded nats server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("relay: embedded nats server not ready")
	}
	logging.Info().Str("url", ns.ClientURL()).Msg("embedded nats server started")
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL returns the connection URL.
func (s *EmbeddedServer) ClientURL() string { return s.server.ClientURL() }

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// NewNATSPubSub builds the watermill publisher/subscriber pair over core
// NATS. The relay carries ephemeral fan-out only, so JetStream persistence
// is disabled; a message missed during an outage is also gone from every
// member's live stream and history covers it.
func NewNATSPubSub(url string) (message.Publisher, message.Subscriber, error) {
	logger := watermill.NewStdLogger(false, false)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("relay: create publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Unmarshaler: &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, fmt.Errorf("relay: create subscriber: %w", err)
	}

	return pub, sub, nil
}
