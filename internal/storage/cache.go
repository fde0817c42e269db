package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/veritas/internal/models"
	"github.com/hyperjump/veritas/pkg/utils"
)

// Cache is the in-memory corpus: document hashes plus chunks and embeddings
// as parallel collections. Position i of Chunks always owns position i of
// Embeddings; every mutation below keeps the two the same length.
type Cache struct {
	store      Store
	logger     *zap.Logger
	hashes     map[string]string
	chunks     []models.Chunk
	embeddings [][]float32
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger for the cache.
func WithLogger(l *zap.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = utils.LoggerOrNop(l)
	}
}

// NewCache returns an empty cache persisted through store.
func NewCache(store Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:  store,
		logger: zap.NewNop(),
		hashes: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the in-memory state with the stored snapshot. On any error
// the in-memory state is left untouched.
func (c *Cache) Load() error {
	snap, err := c.store.Load()
	if err != nil {
		return err
	}
	c.hashes = snap.DocumentHashes
	if c.hashes == nil {
		c.hashes = make(map[string]string)
	}
	c.chunks = snap.Chunks
	c.embeddings = snap.Embeddings
	c.logger.Info("loaded cache", zap.String("path", c.store.Path()), zap.Int("chunks", len(c.chunks)))
	return nil
}

// Save persists the current state.
func (c *Cache) Save() error {
	snap := &Snapshot{
		Version:        CacheVersion,
		DocumentHashes: c.hashes,
		Chunks:         c.chunks,
		Embeddings:     c.embeddings,
	}
	if snap.Chunks == nil {
		snap.Chunks = []models.Chunk{}
	}
	if snap.Embeddings == nil {
		snap.Embeddings = [][]float32{}
	}
	if err := c.store.Save(snap); err != nil {
		return fmt.Errorf("save cache to %s: %w", c.store.Path(), err)
	}
	c.logger.Info("saved cache", zap.String("path", c.store.Path()), zap.Int("chunks", len(c.chunks)))
	return nil
}

// Clear empties the in-memory state. The persisted cache is not touched.
func (c *Cache) Clear() {
	c.hashes = make(map[string]string)
	c.chunks = nil
	c.embeddings = nil
	c.logger.Info("cache cleared")
}

// Path returns where the cache is persisted.
func (c *Cache) Path() string { return c.store.Path() }

// Chunks returns the chunk collection. Callers must not modify it.
func (c *Cache) Chunks() []models.Chunk { return c.chunks }

// Embeddings returns the embedding collection. Callers must not modify it.
func (c *Cache) Embeddings() [][]float32 { return c.embeddings }

// Len returns the number of chunks.
func (c *Cache) Len() int { return len(c.chunks) }

// DocumentCount returns the number of fully ingested documents.
func (c *Cache) DocumentCount() int { return len(c.hashes) }

// Hash returns the recorded content hash for docID.
func (c *Cache) Hash(docID string) (string, bool) {
	h, ok := c.hashes[docID]
	return h, ok
}

// SetHash records docID as fully ingested with the given content hash.
func (c *Cache) SetHash(docID, hash string) { c.hashes[docID] = hash }

// DeleteHash forgets docID.
func (c *Cache) DeleteHash(docID string) { delete(c.hashes, docID) }

// Append adds aligned chunks and embeddings.
func (c *Cache) Append(chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("append: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	c.chunks = append(c.chunks, chunks...)
	c.embeddings = append(c.embeddings, embeddings...)
	return nil
}

// RemoveSource drops every chunk whose source is docID, together with its
// embedding, and returns how many were removed.
func (c *Cache) RemoveSource(docID string) int {
	keptChunks := c.chunks[:0:0]
	keptEmbeddings := c.embeddings[:0:0]
	for i, ch := range c.chunks {
		if ch.Source == docID {
			continue
		}
		keptChunks = append(keptChunks, ch)
		keptEmbeddings = append(keptEmbeddings, c.embeddings[i])
	}
	removed := len(c.chunks) - len(keptChunks)
	if removed > 0 {
		c.chunks = keptChunks
		c.embeddings = keptEmbeddings
	}
	return removed
}
