// Package server exposes the translation orchestrator over HTTP.
//
// Routes:
//
//	POST /api/translate   translate uploaded tables
//	GET  /health          liveness
//	GET  /ready           readiness (pings Redis when configured)
//	GET  /metrics         Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/table-translator/pkg/fetch"
	"github.com/Sternrassler/table-translator/pkg/logging"
	"github.com/Sternrassler/table-translator/pkg/metrics"
	"github.com/Sternrassler/table-translator/pkg/orchestrator"
	"github.com/Sternrassler/table-translator/pkg/table"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Translator translates one table. *orchestrator.Orchestrator implements it.
type Translator interface {
	Translate(ctx context.Context, tbl *table.Table, targetLang string) (*table.Table, orchestrator.Report, error)
}

// Fetcher downloads a referenced file. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, ref fetch.FileRef) ([]byte, error)
}

// Config holds HTTP server configuration.
type Config struct {
	// Addr to listen on, e.g. ":8080".
	Addr string

	// CORSOrigins allowed to call the API. Empty allows any origin.
	CORSOrigins []string

	// MaxBodyBytes caps the JSON request body.
	MaxBodyBytes int64

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		CORSOrigins:     []string{"*"},
		MaxBodyBytes:    1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server is the HTTP front end.
type Server struct {
	translator Translator
	fetcher    Fetcher
	redis      *redis.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a server. redisClient may be nil, in which case /ready only
// reports the process as up.
func New(translator Translator, fetcher Fetcher, redisClient *redis.Client, cfg Config) (*Server, error) {
	if translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	return &Server{
		translator: translator,
		fetcher:    fetcher,
		redis:      redisClient,
		config:     cfg,
		logger:     logging.NewLogger("server"),
	}, nil
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(corsOptions(s.config.CORSOrigins)))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(maxBodySize(s.config.MaxBodyBytes))
		r.Post("/translate", s.handleTranslate)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
