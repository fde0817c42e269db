// Package server exposes ingestion and retrieval over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/veritas/internal/config"
	"github.com/hyperjump/veritas/internal/models"
	"github.com/hyperjump/veritas/pkg/utils"
)

// Retriever is what the API needs from the document manager.
type Retriever interface {
	AddDocument(ctx context.Context, text, sourceID string) error
	RemoveDocument(ctx context.Context, docID string) (bool, error)
	Search(ctx context.Context, query string, k int, minSimilarity float64) []models.SearchResult
	SearchLexical(query string, k int) []models.SearchResult
	Stats() models.Stats
}

// Server is the HTTP server for the veritas API.
type Server struct {
	retriever Retriever
	cfg       *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server over r. cfg supplies the listen address and
// the search defaults.
func NewServer(r Retriever, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		retriever: r,
		cfg:       cfg,
		logger:    utils.LoggerOrNop(logger),
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	// Ingestion can wait on provider retries and pacing.
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/search", s.handleSearch)
		r.Post("/documents", s.handleAddDocument)
		r.Delete("/documents/*", s.handleDeleteDocument)
	})
	return r
}

// Start serves until Stop is called or listening fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger tags each request with an id and logs it when done.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
