// Package server provides the HTTP API for snapfind.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/auth"
	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/internal/embedding"
	"github.com/hyperjump/snapfind/internal/ingest"
	"github.com/hyperjump/snapfind/internal/search"
	"github.com/hyperjump/snapfind/internal/storage"
)

// WatchService is the subset of the import watcher exposed over HTTP.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the snapfind API.
type Server struct {
	engine     *search.Engine
	ingester   *ingest.Ingester
	store      storage.PhotoStore
	embedder   embedding.Embedder
	auth       *auth.Authenticator
	config     *config.Config
	configPath string
	configMu   sync.Mutex
	watch      WatchService
	logger     *zap.Logger
	server     *http.Server
	startedAt  time.Time
}

// NewServer creates a server with the given dependencies. watch may be nil
// when no import roots are configured; configPath may be empty, in which case
// watch changes are not persisted.
func NewServer(
	engine *search.Engine,
	ingester *ingest.Ingester,
	store storage.PhotoStore,
	embedder embedding.Embedder,
	authn *auth.Authenticator,
	cfg *config.Config,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:     engine,
		ingester:   ingester,
		store:      store,
		embedder:   embedder,
		auth:       authn,
		config:     cfg,
		configPath: configPath,
		watch:      watch,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	timeout := time.Duration(s.config.Server.RequestTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	if s.config.Server.RateLimit > 0 {
		r.Use(newRateLimiter(s.config.Server.RateLimit, s.config.Server.RateBurst).Middleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware)
		}
		r.Post("/upload-image", s.handleUpload)
		r.Post("/search-images", s.handleSearch)
		r.Post("/search-images-old", s.handleSearchLegacy)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/photos", s.handleUpload)
			r.Get("/photos/{id}", s.handleGetPhoto)
			r.Delete("/photos/{id}", s.handleDeletePhoto)
			r.Post("/search", s.handleSearch)
			r.Get("/events", s.handleListEvents)
			r.Delete("/events/{event}", s.handleDeleteEvent)
			r.Get("/status", s.handleStatus)
			r.Get("/watch/directories", s.handleWatchDirectoriesList)
			r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
			r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server",
		zap.String("addr", addr),
		zap.String("college", s.config.College),
		zap.String("table", s.config.Storage.Table),
		zap.Bool("auth", s.auth != nil && s.auth.Enabled()))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
