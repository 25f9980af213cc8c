// Package server is the operator HTTP API of the publisher daemon: health,
// status, cached prices, publication history, manual publish triggers and a
// WebSocket feed of publish events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/openoracle/internal/server/handler"
	"github.com/alanyoungcy/openoracle/internal/server/middleware"
	"github.com/alanyoungcy/openoracle/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimitPerMin int    // 0 disables rate limiting
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Publish and Audit may be nil, which leaves their routes unregistered.
type Handlers struct {
	Health       *handler.HealthHandler
	Status       *handler.StatusHandler
	Publications *handler.PublicationHandler
	Publish      *handler.PublishHandler
	Audit        *handler.AuditHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered. Health checks
// bypass authentication; every other route requires the API key when one is
// configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	api.HandleFunc("GET /api/prices", handlers.Publications.ListPrices)
	api.HandleFunc("GET /api/publications/{venue}", handlers.Publications.VenueHistory)
	api.HandleFunc("GET /api/publications/{venue}/{asset}", handlers.Publications.KeyHistory)
	if handlers.Publish != nil {
		api.HandleFunc("POST /api/publish/trigger", handlers.Publish.Trigger)
	}
	if handlers.Audit != nil {
		api.HandleFunc("GET /api/audit", handlers.Audit.List)
	}
	if wsHub != nil {
		api.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var limiter *middleware.IPLimiter
	if cfg.RateLimitPerMin > 0 {
		limiter = middleware.NewIPLimiter(cfg.RateLimitPerMin)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	root.Handle("/", middleware.RateLimit(limiter)(middleware.Auth(cfg.APIKey)(api)))

	// Build the middleware chain.
	var h http.Handler = root
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
