package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// JSONStore keeps the snapshot in a single indented JSON document.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store writing to path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the cache file path.
func (s *JSONStore) Path() string { return s.path }

// Close is a no-op for JSONStore.
func (s *JSONStore) Close() error { return nil }

// Load reads the snapshot. The version is checked before the body is decoded,
// so caches written by other format versions never reach the decoder.
func (s *JSONStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("read cache: %w", err)
	}

	var header struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}
	if err := checkVersion(header.Version); err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}
	if err := validateSnapshot(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save writes the snapshot to a temporary file in the same directory and
// renames it over the cache file.
func (s *JSONStore) Save(snap *Snapshot) (err error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString()[:8])
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer func() {
		_ = f.Close()
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
