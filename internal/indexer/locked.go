package indexer

import (
	"context"
	"sync"

	"github.com/hyperjump/veritas/internal/extract"
	"github.com/hyperjump/veritas/internal/models"
)

// Locked serialises writers to a Manager and lets readers run together.
type Locked struct {
	mu sync.RWMutex
	m  *Manager
}

// NewLocked wraps m. m must not be used directly afterwards.
func NewLocked(m *Manager) *Locked {
	return &Locked{m: m}
}

func (l *Locked) AddDocument(ctx context.Context, text, sourceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.AddDocument(ctx, text, sourceID)
}

func (l *Locked) IndexFile(ctx context.Context, path string, ex extract.Extractor) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.IndexFile(ctx, path, ex)
}

func (l *Locked) IndexDirectory(ctx context.Context, dir string, exts []string, ex extract.Extractor) (IngestReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.IndexDirectory(ctx, dir, exts, ex)
}

func (l *Locked) RemoveDocument(ctx context.Context, docID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.RemoveDocument(ctx, docID)
}

func (l *Locked) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Reset(ctx)
}

func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Close()
}

// Search holds the read lock while the query is embedded, so a slow
// provider delays writers but not other readers.
func (l *Locked) Search(ctx context.Context, query string, k int, minSimilarity float64) []models.SearchResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Search(ctx, query, k, minSimilarity)
}

func (l *Locked) SearchLexical(query string, k int) []models.SearchResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.SearchLexical(query, k)
}

func (l *Locked) IsProcessed(source string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.IsProcessed(source)
}

func (l *Locked) Stats() models.Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Stats()
}
