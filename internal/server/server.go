package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/enrolld/internal/config"
	"github.com/me/enrolld/internal/pool"
	"github.com/me/enrolld/internal/scheduler"
	"github.com/me/enrolld/internal/store"
)

// Server is the enrolld REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.Config
	startTime time.Time
	store     store.Store
	pool      *pool.Manager
	batches   *BatchRegistry
}

// New creates a new Server with all routes registered. The runner drives
// batches started through the API; batch lifecycle lives in the in-process
// registry, so restarting the server forgets running batches but not job
// state, which is in the store.
func New(cfg config.Config, st store.Store, p *pool.Manager, runner *scheduler.Runner, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		pool:      p,
		batches:   NewBatchRegistry(runner, logger),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// StopBatches cancels every running batch. Called during graceful shutdown.
func (s *Server) StopBatches() {
	s.batches.StopAll()
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Accounts (job records)
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccounts)
			r.Get("/{accountID}", s.handleGetAccount)
		})

		// Pool resources
		r.Route("/resources", func(r chi.Router) {
			r.Get("/", s.handleListResources)
			r.Post("/", s.handleCreateResource)
			r.Post("/reset-usage", s.handleResetUsage)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetResource)
				r.Patch("/", s.handleUpdateResource)
			})
		})

		// Batches
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", s.handleListBatches)
			r.Post("/", s.handleStartBatch)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetBatch)
				r.Delete("/", s.handleStopBatch)
			})
		})

		// SSE endpoints for real-time updates
		r.Route("/sse", func(r chi.Router) {
			r.Get("/batches/{id}", s.handleSSEBatch)
		})
	})
}
