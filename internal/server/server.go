// Package server exposes the betting client over HTTP and WebSocket: round
// lifecycle endpoints, result reveal, claim settlement, and live event
// fan-out.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cipherbet/cipherbet/internal/domain"
	"github.com/cipherbet/cipherbet/internal/server/handler"
	"github.com/cipherbet/cipherbet/internal/server/middleware"
	"github.com/cipherbet/cipherbet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit requests per client IP per RateWindow; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Rounds *handler.RoundHandler
	Events *handler.EventsHandler
}

// Server is the HTTP + WebSocket API server for the betting client.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Round lifecycle.
	mux.HandleFunc("GET /api/rounds", handlers.Rounds.ListRounds)
	mux.HandleFunc("POST /api/rounds", handlers.Rounds.CreateRound)
	mux.HandleFunc("GET /api/rounds/{id}", handlers.Rounds.GetRound)
	mux.HandleFunc("POST /api/rounds/{id}/bets", handlers.Rounds.PlaceBet)
	mux.HandleFunc("POST /api/rounds/{id}/resolve", handlers.Rounds.ResolveRound)

	// Reveal and settlement.
	mux.HandleFunc("GET /api/rounds/{id}/result", handlers.Rounds.GetResult)
	mux.HandleFunc("POST /api/rounds/{id}/claim", handlers.Rounds.Claim)

	// This wallet's bet history.
	mux.HandleFunc("GET /api/bets", handlers.Rounds.MyBets)

	// Buffered event history for client backfill.
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
