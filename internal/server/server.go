// Package server exposes search, record lookup, and index
// administration over HTTP. Read endpoints are open; admin endpoints
// sit behind a bearer token and stay locked until one is configured.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/openmuni/cividex/internal/async"
	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/ingest"
	"github.com/openmuni/cividex/internal/search"
	"github.com/openmuni/cividex/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg      *config.Config
	searcher *search.Orchestrator
	engine   index.Engine
	records  store.RecordStore
	jobs     *async.Reindexer
	cache    *searchCache
	srv      *http.Server
}

// New validates dependencies and creates a server. The reindexer is
// optional; without one the reindex endpoints answer 503.
func New(cfg *config.Config, searcher *search.Orchestrator, engine index.Engine, records store.RecordStore, jobs *async.Reindexer) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("index engine is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}

	s := &Server{
		cfg:      cfg,
		searcher: searcher,
		engine:   engine,
		records:  records,
		jobs:     jobs,
		cache:    newSearchCache(cfg.Server.CacheSize, cfg.Server.CacheTTLDuration()),
	}

	// Cached responses go stale the moment a reindex lands.
	if jobs != nil {
		jobs.OnDone(func(res *ingest.Result, err error) {
			if err == nil {
				s.cache.Purge()
			}
		})
	}

	return s, nil
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger)
	r.Use(jsonRecoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Get("/search", s.handleSearch)
		api.Get("/records/{id}", s.handleGetRecord)
		api.Get("/records", s.handleListRecords)
		api.Get("/stats", s.handleStats)
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(bearerAuth(s.cfg.Server.AdminToken))
		admin.Post("/reindex", s.handleReindex)
		admin.Get("/reindex", s.handleReindexStatus)
		admin.Delete("/records/{id}", s.handleDeleteRecord)
	})

	return r
}

// Start serves until the context is canceled, then shuts down
// gracefully, draining in-flight requests and stopping any background
// reindex.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_started", "addr", s.cfg.Server.Addr,
			"admin_enabled", s.cfg.Server.AdminToken != "")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if s.jobs != nil {
		s.jobs.Stop()
	}

	slog.Info("server_stopped")
	return nil
}
