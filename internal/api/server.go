// Package api provides the HTTP surface over the matching pipeline.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nmtc-exchange/automatch/internal/domain"
	"github.com/nmtc-exchange/automatch/internal/scan"
	"github.com/nmtc-exchange/automatch/internal/screen"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, screens *screen.Engine, scanner *scan.Service, version string, reasonCap int) *Server {
	handler := NewHandler(repo, cache, bus, screens, scanner, version, reasonCap)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Pair scoring
	router.Post("/match", handler.Match)

	// Bulk scans
	router.Post("/scan/deal", handler.ScanDeal)
	router.Post("/scan/cde", handler.ScanCDE)

	// Deal store
	router.Get("/deals", handler.ListDeals)
	router.Post("/deals", handler.CreateDeal)
	router.Get("/deals/{id}", handler.GetDeal)
	router.Get("/deals/{id}/matches", handler.ListDealMatches)

	// CDE directory
	router.Get("/cdes", handler.ListCDEs)
	router.Post("/cdes", handler.CreateCDE)
	router.Get("/cdes/{id}", handler.GetCDE)
	router.Put("/cdes/{id}", handler.CreateCDE)

	// Persisted match results
	router.Get("/matches/{id}", handler.GetMatch)

	// Compliance screen management
	router.Get("/screens", handler.ListScreens)
	router.Post("/screens", handler.CreateScreen)
	router.Get("/screens/{id}", handler.GetScreen)
	router.Post("/screens/reload", handler.ReloadScreens)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
