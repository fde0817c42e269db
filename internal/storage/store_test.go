package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/veritas/internal/models"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Version:        CacheVersion,
		DocumentHashes: map[string]string{"doc-a": "h1", "doc-b": "h2"},
		Chunks: []models.Chunk{
			{Text: "first chunk", Source: "doc-a", ChunkIdx: 0},
			{Text: "second chunk", Source: "doc-a", ChunkIdx: 1},
			{Text: "other doc", Source: "doc-b", ChunkIdx: 0},
		},
		Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}, {-0.5, 0.25}},
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sq, err := NewSQLiteStore(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		BackendJSON:   NewJSONStore(filepath.Join(dir, "cache.json")),
		BackendSQLite: sq,
	}
}

func TestStore_roundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleSnapshot()
			if err := store.Save(want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := store.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got.Chunks) != 3 || len(got.Embeddings) != 3 {
				t.Fatalf("got %d chunks, %d embeddings", len(got.Chunks), len(got.Embeddings))
			}
			for i := range want.Chunks {
				if got.Chunks[i] != want.Chunks[i] {
					t.Errorf("chunk %d = %+v, want %+v", i, got.Chunks[i], want.Chunks[i])
				}
				for j := range want.Embeddings[i] {
					if got.Embeddings[i][j] != want.Embeddings[i][j] {
						t.Errorf("embedding %d differs: %v vs %v", i, got.Embeddings[i], want.Embeddings[i])
					}
				}
			}
			if got.DocumentHashes["doc-b"] != "h2" || len(got.DocumentHashes) != 2 {
				t.Errorf("hashes = %v", got.DocumentHashes)
			}

			// A second save replaces the first.
			smaller := &Snapshot{Version: CacheVersion, DocumentHashes: map[string]string{}, Chunks: []models.Chunk{}, Embeddings: [][]float32{}}
			if err := store.Save(smaller); err != nil {
				t.Fatal(err)
			}
			got, err = store.Load()
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Chunks) != 0 || len(got.DocumentHashes) != 0 {
				t.Errorf("expected empty snapshot after overwrite, got %+v", got)
			}
		})
	}
}

func TestStore_notFound(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Load(); !errors.Is(err, ErrCacheNotFound) {
				t.Errorf("Load on empty store = %v, want ErrCacheNotFound", err)
			}
		})
	}
}

func TestStore_versionMismatch(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			snap := sampleSnapshot()
			snap.Version = "1.1"
			if err := store.Save(snap); err != nil {
				t.Fatal(err)
			}
			if _, err := store.Load(); !errors.Is(err, ErrVersionMismatch) {
				t.Errorf("Load = %v, want ErrVersionMismatch", err)
			}
		})
	}
}

func TestJSONStore_format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")
	store := NewJSONStore(path)
	if err := store.Save(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"version": "1.2"`, `"document_hashes"`, `"chunk_idx": 1`, `"embeddings"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("cache file missing %s", key)
		}
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestJSONStore_oldFormatRejectedBeforeDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	// Older layout: chunks were plain strings.
	old := `{"version": "1.0", "chunks": ["a", "b"], "embeddings": [[1], [2]]}`
	if err := os.WriteFile(path, []byte(old), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONStore(path).Load(); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Load = %v, want ErrVersionMismatch", err)
	}
}

func TestJSONStore_corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewJSONStore(path).Load()
	if err == nil || errors.Is(err, ErrCacheNotFound) || errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Load = %v, want decode error", err)
	}

	misaligned := `{"version": "1.2", "document_hashes": {}, "chunks": [{"text": "a", "source": "s", "chunk_idx": 0}], "embeddings": []}`
	if err := os.WriteFile(path, []byte(misaligned), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONStore(path).Load(); err == nil {
		t.Error("expected error for misaligned cache")
	}
}

func TestJSONStore_failedSaveKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")
	store := NewJSONStore(path)
	if err := store.Save(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	// Renaming a file over a directory fails after the temp file is written.
	blocked := NewJSONStore(filepath.Join(dir, "blocked"))
	if err := os.Mkdir(filepath.Join(dir, "blocked"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "blocked", "x"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := blocked.Save(sampleSnapshot()); err == nil {
		t.Fatal("expected save over non-empty directory to fail")
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
	if _, err := store.Load(); err != nil {
		t.Errorf("previous cache unreadable: %v", err)
	}
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore("", filepath.Join(dir, "c.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*JSONStore); !ok {
		t.Errorf("default backend = %T, want *JSONStore", s)
	}
	s, err = NewStore(BackendSQLite, filepath.Join(dir, "c.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("sqlite backend = %T", s)
	}
	if _, err := NewStore("redis", "x"); err == nil {
		t.Error("expected error for unknown backend")
	}
}
