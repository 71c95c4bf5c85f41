// Package api provides the HTTP REST surface of the assistant backend.
//
// Endpoints:
//
//	POST   /api/chat                   - handle one message (text/voice/image)
//	POST   /api/documents              - ingest a document into the knowledge store
//	GET    /api/documents/stats        - chunk-store statistics
//	GET    /api/sessions/{id}/history  - ordered turns for a session
//	DELETE /api/sessions/{id}          - clear a session
//	GET    /health                     - liveness probe
//	GET    /ready                      - readiness probe (pings the chunk store)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery, logging, rate limiting
//   - health.go: health check endpoints
//   - chat.go: chat endpoint
//   - documents.go: ingestion and stats endpoints
//   - session.go: session history endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/multisense/agent/internal/log"
	"github.com/multisense/agent/internal/memory"
	"github.com/multisense/agent/internal/orchestrator"
	"github.com/multisense/agent/internal/rag"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = ":8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// Bounds slow-header clients (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation calls dominate, so this is the longest timeout.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum wait for the next request on keep-alive
	// connections.
	IdleTimeout = 120 * time.Second
)

// Options tunes the server beyond its handler dependencies.
type Options struct {
	// RateLimit is the sustained request rate per second. Zero disables
	// rate limiting.
	RateLimit float64
	// RateBurst is the token bucket size; defaults to 2x RateLimit.
	RateBurst int
}

// Server is the HTTP server for the assistant's REST API.
type Server struct {
	mux    *http.ServeMux
	opts   Options
	logger log.Logger

	health    *HealthHandler
	chat      *ChatHandler
	documents *DocumentsHandler
	sessions  *SessionHandler
}

// NewServer creates an HTTP server with all routes registered.
// pinger may be nil when the chunk store has no external dependency.
func NewServer(
	orch *orchestrator.Orchestrator,
	engine *rag.Engine,
	mem *memory.Service,
	pinger Pinger,
	backend string,
	opts Options,
	logger log.Logger,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		opts:      opts,
		logger:    logger,
		health:    NewHealthHandler(pinger, logger),
		chat:      NewChatHandler(orch, logger),
		documents: NewDocumentsHandler(engine, backend, logger),
		sessions:  NewSessionHandler(mem, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)
	s.sessions.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → rate limit → handler.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	}
	if s.opts.RateLimit > 0 {
		burst := s.opts.RateBurst
		if burst <= 0 {
			burst = int(2 * s.opts.RateLimit)
		}
		middlewares = append(middlewares, rateLimitMiddleware(s.opts.RateLimit, burst))
	}
	return chain(s.mux, middlewares...)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
