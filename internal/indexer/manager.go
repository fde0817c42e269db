// Package indexer turns documents into searchable chunks: it cleans and
// chunks text, embeds it in batches, keeps the persisted cache in step and
// serves searches over it.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/veritas/internal/embedding"
	"github.com/hyperjump/veritas/internal/fileid"
	"github.com/hyperjump/veritas/internal/models"
	"github.com/hyperjump/veritas/internal/search"
	"github.com/hyperjump/veritas/internal/storage"
	"github.com/hyperjump/veritas/internal/vector"
	"github.com/hyperjump/veritas/pkg/utils"
)

const (
	// DefaultBatchPause is the pause after each successfully embedded batch.
	DefaultBatchPause = 500 * time.Millisecond
	// DefaultBatchSize is the number of chunks embedded per request.
	DefaultBatchSize = 5
)

var (
	// ErrEmptyText is returned when a document has no non-whitespace text.
	ErrEmptyText = errors.New("document text is empty")
	// ErrIncompleteDocument is returned when at least one batch of a
	// document failed to embed. The document is not recorded as processed.
	ErrIncompleteDocument = errors.New("document only partially embedded")
)

// Manager owns the cache and the search index derived from it. It is not
// safe for concurrent use; wrap it in Locked when callers share it.
type Manager struct {
	embedder      embedding.Embedder
	queryEmbedder embedding.Embedder
	chunker       *Chunker
	store         storage.Store
	cache         *storage.Cache
	engine        *search.Engine
	index         vector.Index
	logger        *zap.Logger

	batchSize  int
	batchPause time.Duration
	queryCache int
	dirty      bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for the manager and the components it builds.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = utils.LoggerOrNop(l) }
}

// WithVectorIndex selects the nearest-neighbour index. Default is the exact
// in-memory index.
func WithVectorIndex(idx vector.Index) ManagerOption {
	return func(m *Manager) { m.index = idx }
}

// WithBatchSize sets how many chunks go into one embedding request. It is
// clamped to embedding.MaxBatchSize.
func WithBatchSize(n int) ManagerOption {
	return func(m *Manager) { m.batchSize = n }
}

// WithBatchPause sets the pause after each successful batch.
func WithBatchPause(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d >= 0 {
			m.batchPause = d
		}
	}
}

// WithQueryCache keeps the embeddings of the last n distinct queries.
func WithQueryCache(n int) ManagerOption {
	return func(m *Manager) { m.queryCache = n }
}

// NewManager loads the persisted cache through store and builds the index.
// A cache that is missing, unreadable or from another version is discarded
// and the manager starts empty.
func NewManager(embedder embedding.Embedder, store storage.Store, chunker *Chunker, opts ...ManagerOption) *Manager {
	m := &Manager{
		embedder:   embedder,
		store:      store,
		chunker:    chunker,
		logger:     zap.NewNop(),
		batchSize:  embedder.BatchSize(),
		batchPause: DefaultBatchPause,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.batchSize = embedding.EffectiveBatchSize(m.batchSize)
	m.queryEmbedder = embedder
	if m.queryCache > 0 {
		m.queryEmbedder = embedding.NewCachedEmbedder(embedder, m.queryCache)
	}

	m.cache = storage.NewCache(store, storage.WithLogger(m.logger))
	m.engine = search.NewEngine(m.cache, m.index, search.WithLogger(m.logger))

	if err := m.cache.Load(); err != nil {
		if errors.Is(err, storage.ErrCacheNotFound) {
			m.logger.Info("no cache found, starting empty", zap.String("path", store.Path()))
		} else {
			m.logger.Warn("could not load cache, starting empty", zap.String("path", store.Path()), zap.Error(err))
		}
		m.cache.Clear()
		return m
	}
	_ = m.engine.Rebuild(context.Background())
	return m
}

// IsProcessed reports whether source is recorded with its current content
// hash. An existing file is identified by its path; anything else is
// treated as literal text.
func (m *Manager) IsProcessed(source string) bool {
	id, hash, err := fileid.Resolve(source)
	if err != nil {
		m.logger.Warn("could not hash source", zap.String("source", source), zap.Error(err))
		return false
	}
	recorded, ok := m.cache.Hash(id)
	return ok && recorded == hash
}

// contentHash hashes the file behind sourceID when there is one, the text
// otherwise.
func contentHash(text, sourceID string) (string, error) {
	if sourceID != "" && fileid.IsRegularFile(sourceID) {
		return fileid.FileHash(sourceID)
	}
	return fileid.TextHash(text), nil
}

// AddDocument ingests text under sourceID, or under an id derived from the
// text when sourceID is empty. Unchanged documents are skipped. A changed
// document loses its previous chunks before the new ones are embedded.
//
// Chunks from batches that embedded successfully stay in the cache even when
// a later batch fails; the document is then not recorded and
// ErrIncompleteDocument is returned.
func (m *Manager) AddDocument(ctx context.Context, text, sourceID string) error {
	if strings.TrimSpace(text) == "" {
		m.logger.Warn("skipping empty document", zap.String("source", sourceID))
		return ErrEmptyText
	}
	docID := sourceID
	if docID == "" {
		docID = fileid.TextDocID(text)
	}
	hash, err := contentHash(text, sourceID)
	if err != nil {
		m.logger.Error("could not hash document", zap.String("doc_id", docID), zap.Error(err))
		return fmt.Errorf("hash document %s: %w", docID, err)
	}

	if recorded, ok := m.cache.Hash(docID); ok {
		if recorded == hash {
			m.logger.Debug("document unchanged", zap.String("doc_id", docID))
			return nil
		}
		removed := m.cache.RemoveSource(docID)
		m.cache.DeleteHash(docID)
		m.markDirty()
		m.logger.Info("document changed, removed stale chunks", zap.String("doc_id", docID), zap.Int("removed", removed))
	}

	chunks := m.chunker.Chunk(text)
	if len(chunks) == 0 {
		m.logger.Warn("document produced no chunks", zap.String("doc_id", docID))
		return nil
	}

	failed := 0
	for start := 0; start < len(chunks); start += m.batchSize {
		end := start + m.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := m.embedBatch(ctx, docID, chunks[start:end], start); err != nil {
			failed++
			m.logger.Error("batch embedding failed",
				zap.String("doc_id", docID),
				zap.Int("batch_start", start),
				zap.Int("batch_len", end-start),
				zap.String("kind", string(embedding.KindOf(err))),
				zap.Error(err))
			continue
		}
		if err := sleepContext(ctx, m.batchPause); err != nil {
			m.logger.Warn("batch pause interrupted", zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %s: %d of %d batches failed", ErrIncompleteDocument, docID, failed, (len(chunks)+m.batchSize-1)/m.batchSize)
	}

	m.cache.SetHash(docID, hash)
	m.markDirty()
	m.logger.Info("document processed", zap.String("doc_id", docID), zap.Int("chunks", len(chunks)))
	return m.saveCache(ctx)
}

// embedBatch embeds texts and appends them to the cache numbered from start.
func (m *Manager) embedBatch(ctx context.Context, docID string, texts []string, start int) error {
	vecs, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	batch := make([]models.Chunk, len(texts))
	for i, t := range texts {
		batch[i] = models.Chunk{Text: t, Source: docID, ChunkIdx: start + i}
	}
	if err := m.cache.Append(batch, vecs); err != nil {
		return err
	}
	m.markDirty()
	return nil
}

func (m *Manager) markDirty() {
	m.dirty = true
	m.engine.Invalidate()
}

// saveCache persists a dirty cache and rebuilds the index. A failed save
// leaves the cache dirty.
func (m *Manager) saveCache(ctx context.Context) error {
	if !m.dirty {
		return nil
	}
	if err := m.cache.Save(); err != nil {
		m.logger.Error("failed to persist cache", zap.Error(err))
		return err
	}
	m.dirty = false
	if err := m.engine.Rebuild(ctx); err != nil {
		m.logger.Warn("index unavailable, searches will scan all embeddings", zap.Error(err))
	}
	return nil
}

// Search embeds query and returns up to k chunks with similarity of at least
// minSimilarity, best first. Embedding failures yield no results.
func (m *Manager) Search(ctx context.Context, query string, k int, minSimilarity float64) []models.SearchResult {
	if strings.TrimSpace(query) == "" || m.cache.Len() == 0 {
		return nil
	}
	vec := embedding.EmbedOne(ctx, m.queryEmbedder, query, m.logger)
	if vec == nil {
		return nil
	}
	return m.engine.Search(ctx, vec, k, minSimilarity)
}

// SearchLexical ranks chunks by plain token overlap with query.
func (m *Manager) SearchLexical(query string, k int) []models.SearchResult {
	return m.engine.SearchLexical(query, k)
}

// Stats summarises the corpus.
func (m *Manager) Stats() models.Stats {
	return models.Stats{
		DocumentCount:  m.cache.DocumentCount(),
		ChunkCount:     m.cache.Len(),
		EmbeddingCount: len(m.cache.Embeddings()),
		IndexBuilt:     m.engine.IndexBuilt(),
	}
}

// RemoveDocument drops every chunk of docID and its hash, then persists.
// It reports whether anything was removed.
func (m *Manager) RemoveDocument(ctx context.Context, docID string) (bool, error) {
	_, recorded := m.cache.Hash(docID)
	removed := m.cache.RemoveSource(docID)
	if !recorded && removed == 0 {
		return false, nil
	}
	m.cache.DeleteHash(docID)
	m.markDirty()
	m.logger.Info("document removed", zap.String("doc_id", docID), zap.Int("chunks", removed))
	return true, m.saveCache(ctx)
}

// Reset clears every document and persists the empty cache.
func (m *Manager) Reset(ctx context.Context) error {
	m.cache.Clear()
	m.markDirty()
	return m.saveCache(ctx)
}

// CachePath returns where the cache is persisted.
func (m *Manager) CachePath() string { return m.cache.Path() }

// Close flushes unsaved changes and releases the index, the store and the
// embedder.
func (m *Manager) Close() error {
	err := m.saveCache(context.Background())
	for _, c := range []interface{ Close() error }{m.engine, m.store, m.embedder} {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
