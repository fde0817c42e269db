// Package search ranks stored chunks against a query, by embedding similarity
// or by lexical overlap.
package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/veritas/internal/models"
	"github.com/hyperjump/veritas/internal/vector"
	"github.com/hyperjump/veritas/pkg/utils"
)

// Corpus exposes aligned chunks and embeddings. Position i of one belongs to
// position i of the other.
type Corpus interface {
	Chunks() []models.Chunk
	Embeddings() [][]float32
}

// Engine owns the nearest-neighbour index derived from a Corpus. The index is
// only trusted between a successful Rebuild and the next Invalidate; in
// between, semantic search scans every embedding.
type Engine struct {
	corpus Corpus
	index  vector.Index
	built  bool
	logger *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = utils.LoggerOrNop(l)
	}
}

// NewEngine returns an engine over corpus. A nil index selects the exact
// in-memory index.
func NewEngine(corpus Corpus, index vector.Index, opts ...EngineOption) *Engine {
	if index == nil {
		index = vector.NewMemoryIndex()
	}
	e := &Engine{corpus: corpus, index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rebuild indexes every embedding in the corpus from scratch. With no
// embeddings, or when the build fails, the index is marked not built.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.built = false
	embeddings := e.corpus.Embeddings()
	if len(embeddings) == 0 {
		e.logger.Info("no embeddings available for index building")
		return nil
	}
	if err := e.index.Build(ctx, embeddings); err != nil {
		e.logger.Error("index build failed", zap.Error(err))
		return fmt.Errorf("build %s index: %w", e.index.Type(), err)
	}
	e.built = true
	e.logger.Info("built index", zap.String("type", e.index.Type()), zap.Int("embeddings", len(embeddings)))
	return nil
}

// Invalidate marks the index stale after the corpus changed.
func (e *Engine) Invalidate() { e.built = false }

// IndexBuilt reports whether searches go through the index.
func (e *Engine) IndexBuilt() bool { return e.built }

// Close releases the index.
func (e *Engine) Close() error {
	e.built = false
	return e.index.Close()
}

// Search returns up to k chunks whose cosine similarity to query is at least
// minSimilarity, most similar first.
func (e *Engine) Search(ctx context.Context, query []float32, k int, minSimilarity float64) []models.SearchResult {
	chunks := e.corpus.Chunks()
	if len(query) == 0 || len(chunks) == 0 || k <= 0 {
		return nil
	}
	if e.built {
		results, err := e.searchIndex(ctx, query, k, minSimilarity)
		if err == nil {
			return results
		}
		e.logger.Warn("index search failed, scanning all embeddings", zap.Error(err))
	}
	return e.searchBruteForce(query, k, minSimilarity)
}

// searchIndex asks the index for 2k neighbours, converts distance to
// similarity and keeps the index order.
func (e *Engine) searchIndex(ctx context.Context, query []float32, k int, minSimilarity float64) ([]models.SearchResult, error) {
	chunks := e.corpus.Chunks()
	n := 2 * k
	if n > len(chunks) {
		n = len(chunks)
	}
	hits, err := e.index.Search(ctx, query, n)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, 0, k)
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(chunks) {
			return nil, fmt.Errorf("index returned position %d outside corpus of %d", h.Position, len(chunks))
		}
		sim := 1 - h.Distance
		if sim < minSimilarity {
			continue
		}
		results = append(results, toResult(chunks[h.Position], sim))
		if len(results) == k {
			break
		}
	}
	e.logger.Debug("index search", zap.Int("neighbors", len(hits)), zap.Int("results", len(results)))
	return results, nil
}

// searchBruteForce compares query with every stored embedding. Embeddings
// whose dimension differs from the query are skipped.
func (e *Engine) searchBruteForce(query []float32, k int, minSimilarity float64) []models.SearchResult {
	chunks := e.corpus.Chunks()
	embeddings := e.corpus.Embeddings()

	type scored struct {
		pos int
		sim float64
	}
	var candidates []scored
	skipped := 0
	for i, emb := range embeddings {
		if len(emb) != len(query) {
			skipped++
			continue
		}
		sim := vector.CosineSimilarity(query, emb)
		if sim >= minSimilarity {
			candidates = append(candidates, scored{pos: i, sim: sim})
		}
	}
	if skipped > 0 {
		e.logger.Warn("skipped embeddings with mismatched dimensions", zap.Int("count", skipped))
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	e.logger.Debug("brute-force search", zap.Int("embeddings", len(embeddings)), zap.Int("results", len(candidates)))

	if len(candidates) == 0 {
		return nil
	}
	results := make([]models.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = toResult(chunks[c.pos], c.sim)
	}
	return results
}

func toResult(c models.Chunk, sim float64) models.SearchResult {
	return models.SearchResult{Text: c.Text, Similarity: sim, Source: c.Source, ChunkIdx: c.ChunkIdx}
}
