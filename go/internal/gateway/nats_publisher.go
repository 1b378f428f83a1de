package gateway

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NatsConfig holds configuration for mirroring viewer events to NATS
type NatsConfig struct {
	URL           string
	SubjectPrefix string // events go to <prefix>.<type>, e.g. chrono.events.state
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNatsConfig returns default NATS mirror configuration
func DefaultNatsConfig() NatsConfig {
	return NatsConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "chrono.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NatsPublisher mirrors every broadcast onto core NATS subjects so other
// processes (stage displays, recorders) can follow the same stream.
type NatsPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNatsPublisher connects to NATS
func NewNatsPublisher(config NatsConfig) (*NatsPublisher, error) {
	opts := []nats.Option{
		nats.Name("polichrono"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	prefix := config.SubjectPrefix
	if prefix == "" {
		prefix = DefaultNatsConfig().SubjectPrefix
	}

	log.Info().Str("url", nc.ConnectedUrl()).Str("prefix", prefix).Msg("mirroring events to NATS")
	return &NatsPublisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject an event type is published on
func (p *NatsPublisher) Subject(t EventType) string {
	return p.prefix + "." + string(t)
}

// Publish sends data on the subject of t. It only buffers locally, so a slow
// or absent server never stalls the broadcast loop.
func (p *NatsPublisher) Publish(t EventType, data []byte) error {
	if err := p.nc.Publish(p.Subject(t), data); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (p *NatsPublisher) Close() error {
	log.Info().Msg("closing NATS publisher")
	return p.nc.Drain()
}
