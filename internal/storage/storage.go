// Package storage persists the embedding cache: document hashes, chunks and
// their embeddings, kept as parallel collections.
package storage

import (
	"errors"
	"fmt"

	"github.com/hyperjump/veritas/internal/models"
)

// CacheVersion tags every persisted cache. Any other value is a cold start.
const CacheVersion = "1.2"

// Backend names accepted by NewStore.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

var (
	// ErrCacheNotFound means nothing has been persisted yet.
	ErrCacheNotFound = errors.New("cache not found")
	// ErrVersionMismatch means a cache exists but was written by another format version.
	ErrVersionMismatch = errors.New("cache version mismatch")
)

// Snapshot is the persisted form of the cache.
type Snapshot struct {
	Version        string            `json:"version"`
	DocumentHashes map[string]string `json:"document_hashes"`
	Chunks         []models.Chunk    `json:"chunks"`
	Embeddings     [][]float32       `json:"embeddings"`
}

// Store reads and writes snapshots.
type Store interface {
	// Load returns ErrCacheNotFound when nothing is stored and ErrVersionMismatch
	// when the stored version differs from CacheVersion.
	Load() (*Snapshot, error)
	// Save replaces the stored snapshot. A failed save leaves the previous one intact.
	Save(s *Snapshot) error
	Path() string
	Close() error
}

// NewStore opens the store for backend at path.
func NewStore(backend, path string) (Store, error) {
	switch backend {
	case BackendJSON, "":
		return NewJSONStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: json, sqlite)", backend)
	}
}

func checkVersion(found string) error {
	if found != CacheVersion {
		return fmt.Errorf("%w: expected %q, found %q", ErrVersionMismatch, CacheVersion, found)
	}
	return nil
}

func validateSnapshot(s *Snapshot) error {
	if len(s.Chunks) != len(s.Embeddings) {
		return fmt.Errorf("corrupt cache: %d chunks but %d embeddings", len(s.Chunks), len(s.Embeddings))
	}
	return nil
}
