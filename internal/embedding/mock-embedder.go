package embedding

import (
	"context"
	"strings"

	"github.com/hyperjump/veritas/pkg/utils"
)

// MockEmbedder is a deterministic offline embedder. Each lowercased word is
// hashed into a bucket, so texts sharing words get similar vectors.
type MockEmbedder struct {
	dimensions int
	batchSize  int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions, batchSize: 5}
}

// Embed returns a unit-length bag-of-words vector for text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, w := range SplitWords(strings.ToLower(text)) {
		emb[HashString(w)%uint64(e.dimensions)] += 1
	}
	// Keep empty input away from the zero vector.
	emb[0] += 0.01
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// BatchSize returns the preferred batch size.
func (e *MockEmbedder) BatchSize() int { return e.batchSize }

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
