package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service is the viewer gateway: it owns the WebSocket connections, the
// periodic ticker and the optional NATS mirror, and implements the
// broadcaster the speakers service calls after each change.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	ticker            *Ticker
	publisher         *NatsPublisher
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	TickInterval     time.Duration
	Clock            clockwork.Clock
	Nats             *NatsConfig // nil disables the mirror
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		TickInterval:     DefaultTickInterval,
	}
}

// NewService creates a new gateway service reading state from provider
func NewService(config Config, provider StateProvider) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig, provider)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}
	s.ticker = NewTicker(config.Clock, config.TickInterval, provider, s)

	if config.Nats != nil {
		publisher, err := NewNatsPublisher(*config.Nats)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		s.publisher = publisher
		connectionManager.SetMirror(publisher)
	}

	return s, nil
}

// Start runs the connection manager and the ticker until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.connectionManager.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		s.ticker.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	log.Info().Msg("gateway service shutting down")
	return s.Stop()
}

// Stop releases the NATS connection, if any
func (s *Service) Stop() error {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close NATS publisher")
			return err
		}
	}
	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "chrono_gateway"
	stats["nats_mirror"] = s.publisher != nil
	return stats
}

func (s *Service) BroadcastState()      { s.connectionManager.Broadcast(EventTypeState) }
func (s *Service) BroadcastAutoStop()   { s.connectionManager.Broadcast(EventTypeAutoStop) }
func (s *Service) BroadcastTitle()      { s.connectionManager.Broadcast(EventTypeTitle) }
func (s *Service) BroadcastSize()       { s.connectionManager.Broadcast(EventTypeSize) }
func (s *Service) BroadcastSizeMain()   { s.connectionManager.Broadcast(EventTypeSizeMain) }
func (s *Service) BroadcastReloadMain() { s.connectionManager.Broadcast(EventTypeReloadMain) }
