// Package vector provides nearest-neighbour indexes over L2-normalised embeddings.
package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/veritas/pkg/utils"
)

// Index is a derived, in-memory nearest-neighbour structure. It is never
// updated incrementally: Build replaces the whole contents.
type Index interface {
	// Build indexes vectors by position. Vectors are L2-normalised copies;
	// the caller's slices are not modified.
	Build(ctx context.Context, vectors [][]float32) error
	// Search returns up to k neighbours ordered by ascending cosine distance.
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Neighbor is a search hit: the position of the vector passed to Build and
// its cosine distance (1 - cosine similarity) from the query.
type Neighbor struct {
	Position int
	Distance float64
}

// normalizeAll validates that vectors share one non-zero dimension and
// returns normalised copies.
func normalizeAll(vectors [][]float32) ([][]float32, int, error) {
	if len(vectors) == 0 {
		return nil, 0, fmt.Errorf("no vectors to index")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, 0, fmt.Errorf("vector 0 is empty")
	}
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, 0, fmt.Errorf("vector dimension mismatch at %d: got %d, expected %d", i, len(v), dim)
		}
		out[i] = utils.NormalizedCopy(v)
	}
	return out, dim, nil
}
