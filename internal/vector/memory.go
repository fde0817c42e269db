package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/veritas/pkg/utils"
)

// MemoryIndex is an exact index using brute-force inner product search over
// normalised vectors.
type MemoryIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Build replaces the index contents.
func (m *MemoryIndex) Build(ctx context.Context, vectors [][]float32) error {
	normalized, dim, err := normalizeAll(vectors)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = normalized
	m.dimensions = dim
	return nil
}

// Search returns the k nearest vectors by cosine distance.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.vectors) == 0 {
		return nil, fmt.Errorf("index is empty")
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	q := utils.NormalizedCopy(query)
	hits := make([]Neighbor, len(m.vectors))
	for i, vec := range m.vectors {
		hits[i] = Neighbor{Position: i, Distance: 1 - InnerProduct(q, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Dimensions returns the dimension of the indexed vectors, or 0 before Build.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Close releases the indexed vectors.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = nil
	m.dimensions = 0
	return nil
}
