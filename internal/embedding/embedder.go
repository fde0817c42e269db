// Package embedding provides text embedding against a remote provider, token
// counting for the chunker, and a query-embedding cache.
package embedding

import (
	"context"

	"go.uber.org/zap"
)

// MaxBatchSize is the hard upper bound on texts sent in one provider request.
const MaxBatchSize = 10

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns exactly one embedding per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// BatchSize is the preferred number of texts per EmbedBatch call.
	BatchSize() int
	Dimensions() int
	Close() error
}

// EffectiveBatchSize clamps n into [1, MaxBatchSize].
func EffectiveBatchSize(n int) int {
	if n <= 0 {
		return 1
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// EmbedOne embeds text and returns nil on any failure, logging the error
// kind. An empty vector counts as a failure.
func EmbedOne(ctx context.Context, e Embedder, text string, logger *zap.Logger) []float32 {
	vec, err := e.Embed(ctx, text)
	if err == nil && len(vec) > 0 {
		return vec
	}
	if logger != nil {
		logger.Warn("embedding failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
	}
	return nil
}
