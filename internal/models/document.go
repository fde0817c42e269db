// Package models defines core data structures for chunks, queries, and search results.
package models

// Chunk is one retrievable span of a document. Chunks and embeddings are kept
// in parallel collections; the chunk at position i owns the embedding at i.
type Chunk struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	ChunkIdx int    `json:"chunk_idx"`
}

// DocumentInput is the input for ingesting a document over the API.
type DocumentInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Stats summarises the corpus held by the manager.
type Stats struct {
	DocumentCount  int  `json:"document_count"`
	ChunkCount     int  `json:"chunk_count"`
	EmbeddingCount int  `json:"embedding_count"`
	IndexBuilt     bool `json:"index_built"`
}

// Status is Stats plus where and how the corpus is stored.
type Status struct {
	Stats
	CachePath      string `json:"cache_path"`
	CacheBackend   string `json:"cache_backend"`
	IndexType      string `json:"index_type"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}
