package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/veritas/internal/indexer"
	"github.com/hyperjump/veritas/internal/models"
	"github.com/hyperjump/veritas/internal/storage"
)

// maxBodyBytes bounds request bodies, documents included.
const maxBodyBytes = 32 << 20

type healthResponse struct {
	Status     string `json:"status"`
	Documents  int    `json:"documents"`
	Chunks     int    `json:"chunks"`
	IndexBuilt bool   `json:"index_built"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.retriever.Stats()
	s.respondJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Documents:  st.DocumentCount,
		Chunks:     st.ChunkCount,
		IndexBuilt: st.IndexBuilt,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := models.Status{
		Stats:        s.retriever.Stats(),
		CachePath:    s.cfg.Cache.Path,
		CacheBackend: s.cfg.Cache.Backend,
		IndexType:    s.cfg.Index.Type,
	}
	if n, err := storage.DiskUsageBytes(storage.CacheFiles(s.cfg.Cache.Path)...); err == nil {
		resp.DiskUsageBytes = &n
	} else {
		s.logger.Warn("stats: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := models.SearchQuery{
		K:               s.cfg.Search.K,
		LexicalFallback: s.cfg.Search.LexicalFallbackOrDefault(),
	}
	if err := s.decode(w, r, &query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.MinSimilarity == nil {
		v := s.cfg.Search.MinSimilarityOrDefault()
		query.MinSimilarity = &v
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("k", query.K))
	s.respondJSON(w, http.StatusOK, indexer.RunQuery(r.Context(), s.retriever, query))
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := s.decode(w, r, &input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(input.Text) == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	s.logger.Debug("add document request", zap.String("id", input.ID), zap.Int("bytes", len(input.Text)))
	err := s.retriever.AddDocument(r.Context(), input.Text, input.ID)
	switch {
	case err == nil:
	case errors.Is(err, indexer.ErrIncompleteDocument):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	default:
		s.logger.Error("add document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	st := s.retriever.Stats()
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":        input.ID,
		"status":    "indexed",
		"documents": st.DocumentCount,
		"chunks":    st.ChunkCount,
	})
}

// handleDeleteDocument takes the rest of the path, unescaped, as the id so
// file paths work as ids.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || id == "" {
		s.respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	removed, err := s.retriever.RemoveDocument(r.Context(), id)
	if err != nil {
		s.logger.Error("remove document failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
