// Package config loads the veritas configuration from YAML, a .env file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Cache     CacheConfig     `yaml:"cache"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Documents DocumentsConfig `yaml:"documents"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// EmbeddingConfig configures the embedding provider client.
type EmbeddingConfig struct {
	// Provider is "openai" for an OpenAI-compatible endpoint or "mock" for
	// the deterministic offline embedder.
	Provider           string        `yaml:"provider" validate:"oneof=openai mock"`
	MockDimensions     int           `yaml:"mock_dimensions" validate:"gte=0"`
	URL                string        `yaml:"url" validate:"required,url"`
	Model              string        `yaml:"model" validate:"required"`
	Timeout            time.Duration `yaml:"timeout" validate:"gt=0"`
	BatchSize          int           `yaml:"batch_size" validate:"min=1,max=10"`
	MinRequestInterval time.Duration `yaml:"min_request_interval" validate:"gte=0"`
	MaxAttempts        int           `yaml:"max_attempts" validate:"min=1"`
	RetryMinWait       time.Duration `yaml:"retry_min_wait" validate:"gte=0"`
	RetryMaxWait       time.Duration `yaml:"retry_max_wait" validate:"gtefield=RetryMinWait"`
	BatchPause         time.Duration `yaml:"batch_pause" validate:"gte=0"`
	QueryCacheSize     int           `yaml:"query_cache_size" validate:"gte=0"`
}

// ChunkingConfig configures the chunker. Sizes are in tokens.
type ChunkingConfig struct {
	Size int `yaml:"size" validate:"gt=0"`
	// Overlap is a pointer so an explicit 0 is kept.
	Overlap   *int   `yaml:"overlap" validate:"omitempty,gte=0,ltfield=Size"`
	Tokenizer string `yaml:"tokenizer" validate:"oneof=cl100k_base words"`
	// BoilerplatePatterns replaces the built-in header/footer patterns when set.
	BoilerplatePatterns []string `yaml:"boilerplate_patterns"`
}

// CacheConfig holds where and how the embedding cache is persisted.
type CacheConfig struct {
	Path    string `yaml:"path" validate:"required"`
	Backend string `yaml:"backend" validate:"oneof=json sqlite"`
}

// IndexConfig selects the nearest-neighbour index.
type IndexConfig struct {
	Type string `yaml:"type" validate:"oneof=memory faiss"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	K               int      `yaml:"k" validate:"min=1,max=200"`
	MinSimilarity   *float64 `yaml:"min_similarity" validate:"omitempty,gte=-1,lte=1"`
	LexicalFallback *bool    `yaml:"lexical_fallback"`
}

// OverlapOrDefault returns the configured overlap, or the default for Size
// when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.Overlap != nil {
		return *c.Overlap
	}
	return defaultOverlap(c.Size)
}

// MinSimilarityOrDefault returns the configured threshold, 0.10 when unset.
func (s *SearchConfig) MinSimilarityOrDefault() float64 {
	if s.MinSimilarity != nil {
		return *s.MinSimilarity
	}
	return defaultMinSimilarity
}

// LexicalFallbackOrDefault reports whether an empty semantic result falls
// back to lexical search; defaults to true when unset.
func (s *SearchConfig) LexicalFallbackOrDefault() bool {
	if s.LexicalFallback != nil {
		return *s.LexicalFallback
	}
	return true
}

// DocumentsConfig holds the source directory for batch ingestion and watching.
type DocumentsConfig struct {
	Directory  string   `yaml:"directory" validate:"required"`
	Extensions []string `yaml:"extensions" validate:"dive,startswith=."`
	Watch      bool     `yaml:"watch"`
	Recursive  *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (d *DocumentsConfig) RecursiveOrDefault() bool {
	if d.Recursive != nil {
		return *d.Recursive
	}
	return true
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands relative paths against the config
// file's directory. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	cfg.Cache.Path = expandPath(cfg.Cache.Path, configDir)
	cfg.Documents.Directory = expandPath(cfg.Documents.Directory, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none)
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg from the environment, read through lookup.
// REQUEST_TIMEOUT accepts whole seconds or a Go duration.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("EMBEDDINGS_URL", &cfg.Embedding.URL)
	str("EMBEDDING_MODEL_ID", &cfg.Embedding.Model)
	str("EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	str("CACHE_FILE", &cfg.Cache.Path)
	str("DOCUMENTS_DIRECTORY", &cfg.Documents.Directory)

	atoi := func(key string) (int, bool, error) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		return n, true, nil
	}
	if n, ok, err := atoi("CHUNK_SIZE"); err != nil {
		return err
	} else if ok {
		cfg.Chunking.Size = n
	}
	if n, ok, err := atoi("CHUNK_OVERLAP"); err != nil {
		return err
	} else if ok {
		cfg.Chunking.Overlap = &n
	}

	if v, ok := lookup("REQUEST_TIMEOUT"); ok && v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", v, err)
		}
		cfg.Embedding.Timeout = d
	}
	return nil
}

func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s' tag", e.Namespace(), e.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// EnsureDocumentsDir creates the documents directory when missing and
// reports whether it did.
func (c *Config) EnsureDocumentsDir() (created bool, err error) {
	if _, err := os.Stat(c.Documents.Directory); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat documents directory: %w", err)
	}
	if err := os.MkdirAll(c.Documents.Directory, 0o755); err != nil {
		return false, fmt.Errorf("create documents directory: %w", err)
	}
	return true, nil
}

// expandPath resolves a relative path against configDir. "~/" is the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}
