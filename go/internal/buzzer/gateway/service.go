package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/buzzer/go/internal/buzzer/config"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Service is the buzzer gateway: HTTP routes plus participant websockets
type Service struct {
	connectionManager *ConnectionManager
	handler           *Handler
	server            *http.Server
	shutdownTimeout   time.Duration
}

// NewService creates the gateway over an existing session store
func NewService(cfg *config.Config, sessions Sessions) *Service {
	connectionManager := NewConnectionManager(
		NewConnectionConfig(cfg.WebSocket, cfg.Session.MaxNameLength, cfg.Server.AllowedOrigins),
	)
	handler := NewHandler(sessions, connectionManager, cfg.Session.MaxTimerSeconds, cfg.Session.MaxNameLength)

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return &Service{
		connectionManager: connectionManager,
		handler:           handler,
		server: &http.Server{
			Addr:        cfg.Server.Addr,
			Handler:     h2c.NewHandler(c.Handler(handler.Routes()), &http2.Server{}),
			ReadTimeout: cfg.Server.ReadTimeout,
			IdleTimeout: cfg.Server.IdleTimeout,
		},
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}

// Handler returns the full HTTP handler, middleware included
func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

// Stats returns statistics about active connections
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// Start serves HTTP until ctx is cancelled, then drains the server
func (s *Service) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("buzzer gateway shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the HTTP server. Hijacked websockets are not
// tracked by the server; they close when their session terminates.
func (s *Service) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	log.Info().Msg("buzzer gateway stopped")
	return nil
}
