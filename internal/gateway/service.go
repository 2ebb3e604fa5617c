package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// EventSource feeds round events into the connection manager. It is either
// the in-process bus consumer or the JetStream consumer.
type EventSource interface {
	Start(ctx context.Context) error
	Stop() error
}

// Service bundles the WebSocket connection manager, the HTTP handlers and
// the event source for the round gateway.
type Service struct {
	manager      *ConnectionManager
	wsHandler    *WebSocketHandler
	stateHandler *StateHandler
	source       EventSource

	cancel context.CancelFunc
}

// NewService creates a gateway service around an already-constructed
// connection manager and handlers.
func NewService(manager *ConnectionManager, wsHandler *WebSocketHandler, stateHandler *StateHandler, source EventSource) *Service {
	return &Service{
		manager:      manager,
		wsHandler:    wsHandler,
		stateHandler: stateHandler,
		source:       source,
	}
}

// Start launches the connection manager and the event source.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.manager.Start(ctx)

	go func() {
		if err := s.source.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event source stopped with error")
		}
	}()

	log.Info().Msg("gateway service started")
	return nil
}

// Stop shuts down the event source and releases the connection manager.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.source.Stop(); err != nil {
		return err
	}
	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
}
