package config

import "time"

const defaultMinSimilarity = 0.10

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// DefaultExtensions are ingested when documents.extensions is unset.
var DefaultExtensions = []string{".pdf", ".txt", ".md"}

// defaultOverlap is 64 tokens, or an eighth of small chunk sizes.
func defaultOverlap(size int) int {
	if size <= 64 {
		return size / 8
	}
	return 64
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = ProviderOpenAI
	}
	if e.URL == "" {
		e.URL = "http://127.0.0.1:1234/v1/embeddings"
	}
	if e.Model == "" {
		e.Model = "text-embedding-qwen3-embedding-4b"
	}
	if e.Timeout == 0 {
		e.Timeout = 60 * time.Second
	}
	if e.BatchSize == 0 {
		e.BatchSize = 5
	}
	if e.MinRequestInterval == 0 {
		e.MinRequestInterval = time.Second
	}
	if e.MaxAttempts == 0 {
		e.MaxAttempts = 3
	}
	if e.RetryMinWait == 0 {
		e.RetryMinWait = 4 * time.Second
	}
	if e.RetryMaxWait == 0 {
		e.RetryMaxWait = 30 * time.Second
	}
	if e.BatchPause == 0 {
		e.BatchPause = 500 * time.Millisecond
	}
	if e.QueryCacheSize == 0 {
		e.QueryCacheSize = 256
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 512
	}
	if cfg.Chunking.Overlap == nil {
		v := defaultOverlap(cfg.Chunking.Size)
		cfg.Chunking.Overlap = &v
	}
	if cfg.Chunking.Tokenizer == "" {
		cfg.Chunking.Tokenizer = "cl100k_base"
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = "cache.json"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "json"
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "memory"
	}

	if cfg.Search.K == 0 {
		cfg.Search.K = 30
	}
	if cfg.Search.MinSimilarity == nil {
		v := defaultMinSimilarity
		cfg.Search.MinSimilarity = &v
	}
	if cfg.Search.LexicalFallback == nil {
		t := true
		cfg.Search.LexicalFallback = &t
	}

	if cfg.Documents.Directory == "" {
		cfg.Documents.Directory = "documents"
	}
	if cfg.Documents.Extensions == nil {
		cfg.Documents.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Documents.Recursive == nil {
		t := true
		cfg.Documents.Recursive = &t
	}
}
