// Package server provides the HTTP API for BookBuddy.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Jullian93/BookBuddy/internal/catalog"
	"github.com/Jullian93/BookBuddy/internal/config"
	"github.com/Jullian93/BookBuddy/internal/recommend"
	"github.com/Jullian93/BookBuddy/internal/storage"
	"github.com/Jullian93/BookBuddy/internal/vector"
)

// Server is the HTTP server for the BookBuddy API.
type Server struct {
	engine  *recommend.Engine
	loader  *catalog.Loader
	store   storage.Store
	index   vector.Index
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
	started time.Time
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *recommend.Engine,
	loader *catalog.Loader,
	store storage.Store,
	index vector.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine: engine,
		loader: loader,
		store:  store,
		index:  index,
		config: cfg,
		logger: logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/api/v1/users/{id}/recommendations", s.handleRecommendations)
	r.Get("/api/v1/users/{id}/reading-history", s.handleReadingHistory)
	r.Post("/api/v1/users", s.handleCreateUser)
	r.Get("/api/v1/users/{id}", s.handleGetUser)

	r.Get("/api/v1/books", s.handleListBooks)
	r.Post("/api/v1/books", s.handleCreateBook)
	r.Get("/api/v1/books/{id}", s.handleGetBook)
	r.Delete("/api/v1/books/{id}", s.handleDeleteBook)
	r.Get("/api/v1/books/{id}/similar", s.handleSimilarBooks)

	r.Post("/api/v1/borrow-records", s.handleCreateBorrowRecord)

	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.started = time.Now()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
