package ws

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/session"
)

// Service is the coordinator instance: it owns the connection registry, the
// session manager and the WebSocket handler, and is built once at startup.
type Service struct {
	hubManager *HubManager
	sessions   *session.Manager
	handler    *Handler
	logger     zerolog.Logger
}

// NewService creates the registry, the session manager delivering through it,
// and the handler that routes inbound frames to both.
func NewService(logger zerolog.Logger, sessionCfg session.Config, handlerCfg HandlerConfig) *Service {
	hubManager := NewHubManager(logger)
	sessions := session.NewManager(hubManager, logger, sessionCfg)
	handler := NewHandler(hubManager, sessions, logger, handlerCfg)

	return &Service{
		hubManager: hubManager,
		sessions:   sessions,
		handler:    handler,
		logger:     logger.With().Str("component", "ws_service").Logger(),
	}
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// HubManager returns the connection registry.
func (s *Service) HubManager() *HubManager {
	return s.hubManager
}

// Sessions returns the session manager.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// RunReaper removes completed sessions older than retention every interval
// until ctx is done.
func (s *Service) RunReaper(ctx context.Context, interval, retention time.Duration) {
	s.sessions.RunReaper(ctx, interval, retention)
}

// Close disconnects every connection and closes open recordings.
func (s *Service) Close() error {
	s.hubManager.Close()
	err := s.sessions.Close()
	s.logger.Info().Msg("Coordinator closed")
	return err
}
