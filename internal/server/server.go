// Package server exposes the hub over HTTP: the WebSocket endpoint that
// devices and controllers connect to, plus a small REST surface for health
// and statistics.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	srv, err := server.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xxtouch/relay-hub/internal/infrastructure/config"
	"github.com/xxtouch/relay-hub/internal/infrastructure/logging"
	"github.com/xxtouch/relay-hub/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the server.
type Deps struct {
	Config      *config.Config
	Logger      *logging.Logger
	Router      *relay.Router
	Registry    *relay.Registry
	Controllers *relay.ControllerSet
	Version     string
}

// Server is the HTTP front of the relay hub.
//
// It owns the listener and the WebSocket upgrade path; per-connection message
// handling is delegated to the relay router. The server is created with New()
// and started with Start().
type Server struct {
	cfg         *config.Config
	logger      *logging.Logger
	router      *relay.Router
	registry    *relay.Registry
	controllers *relay.ControllerSet
	version     string
	server      *http.Server
	startedAt   time.Time

	// Live WebSocket connections. Shutdown() only waits for plain HTTP
	// requests, so hijacked connections are closed explicitly in Close().
	wsMu    sync.Mutex
	wsConns map[*wsClient]struct{}
}

// New creates a new server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, relay router and state)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("relay router is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Controllers == nil {
		return nil, fmt.Errorf("controller set is required")
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		router:      deps.Router,
		registry:    deps.Registry,
		controllers: deps.Controllers,
		version:     deps.Version,
		wsConns:     make(map[*wsClient]struct{}),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the listener in a background goroutine.
// The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	s.startedAt = time.Now()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("server starting", "address", s.server.Addr, "ws_path", s.cfg.Server.Path)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	s.closeAllClients()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("server health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("server not started")
	}

	return nil
}

// buildRouter creates the HTTP router.
//
// The WebSocket endpoint is mounted at the configured path so existing
// clients that dial the root path keep working, while health and stats live
// under /api/v1.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})

	r.Get(s.cfg.Server.Path, s.handleWebSocket)

	return r
}

// recoveryMiddleware converts handler panics into 500 responses.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStats returns a snapshot of hub occupancy.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":        s.registry.Count(),
		"controllers":    s.controllers.Len(),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"version":        s.version,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; nothing useful left to do.
		_ = err
	}
}
