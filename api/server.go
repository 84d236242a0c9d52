// Package api exposes the ingestion and chat pipeline over HTTP.
//
// Endpoints:
//
//	POST   /api/process            → ingest a document
//	DELETE /api/process/{file_id}  → remove a document's chunks
//	POST   /api/chat               → answer a message against the knowledge base
//	GET    /health                 → liveness probe
//	GET    /ready                  → readiness probe (pings the database)
//
// Health probes sit outside the middleware stack so orchestrator checks are
// never rate limited.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirralabs/mirra/internal/rag"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to resist Slowloris-style
	// connection exhaustion.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because chat responses wait on an upstream
	// model call.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second

	// maxBodyBytes caps request bodies. Documents arrive by path, not by
	// upload, so requests are small JSON envelopes.
	maxBodyBytes = 1 << 20
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Pipeline   *rag.Pipeline // Required
	Pool       *pgxpool.Pool // Optional: nil disables the readiness DB ping
	TrustProxy bool          // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateLimit  float64       // Tokens per second per IP (0 = default 10)
	RateBurst  int           // Burst size per IP (0 = default 20)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes registered and the middleware
// stack applied.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ih := &ingestHandler{pipeline: cfg.Pipeline, logger: logger}
	ch := &chatHandler{pipeline: cfg.Pipeline, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/process", ih.process)
	mux.HandleFunc("DELETE /api/process/{file_id}", ih.remove)
	mux.HandleFunc("POST /api/chat", ch.send)

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}
	rl := newRateLimiter(limit, burst)

	// Middleware stack, outermost first: Recovery → Logging → RateLimit.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	hh := &healthHandler{pool: cfg.Pool, logger: logger}
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", hh.liveness)
	topMux.HandleFunc("GET /ready", hh.readiness)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
