package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/veritas/internal/embedding"
	"github.com/hyperjump/veritas/internal/models"
	"github.com/hyperjump/veritas/internal/storage"
)

// fakeEmbedder produces bag-of-words vectors and can fail chosen batch calls.
type fakeEmbedder struct {
	mu         sync.Mutex
	mock       *embedding.MockEmbedder
	batchSize  int
	batchCalls int
	queryCalls int
	failCalls  map[int]bool // 1-based EmbedBatch call numbers that fail
	failQuery  bool
}

func newFakeEmbedder(batchSize int) *fakeEmbedder {
	return &fakeEmbedder{mock: embedding.NewMockEmbedder(64), batchSize: batchSize, failCalls: map[int]bool{}}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queryCalls++
	fail := f.failQuery
	f.mu.Unlock()
	if fail {
		return nil, &embedding.Error{Kind: embedding.KindTimeout, Message: "provider down"}
	}
	return f.mock.Embed(ctx, text)
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	fail := f.failCalls[f.batchCalls]
	f.mu.Unlock()
	if fail {
		return nil, &embedding.Error{Kind: embedding.KindServerError, StatusCode: 500, Message: "boom"}
	}
	return f.mock.EmbedBatch(ctx, texts)
}

func (f *fakeEmbedder) BatchSize() int  { return f.batchSize }
func (f *fakeEmbedder) Dimensions() int { return 64 }
func (f *fakeEmbedder) Close() error    { return nil }

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

// memStore keeps one snapshot in memory and can be told to fail saves.
type memStore struct {
	snap     *storage.Snapshot
	failSave bool
	saves    int
}

func (s *memStore) Load() (*storage.Snapshot, error) {
	if s.snap == nil {
		return nil, storage.ErrCacheNotFound
	}
	return copySnapshot(s.snap), nil
}

func (s *memStore) Save(snap *storage.Snapshot) error {
	if s.failSave {
		return errors.New("disk full")
	}
	s.saves++
	s.snap = copySnapshot(snap)
	return nil
}

func (s *memStore) Path() string { return "memory" }
func (s *memStore) Close() error { return nil }

func copySnapshot(in *storage.Snapshot) *storage.Snapshot {
	out := &storage.Snapshot{Version: in.Version, DocumentHashes: map[string]string{}}
	for k, v := range in.DocumentHashes {
		out.DocumentHashes[k] = v
	}
	out.Chunks = append([]models.Chunk(nil), in.Chunks...)
	out.Embeddings = append([][]float32(nil), in.Embeddings...)
	return out
}

// docText returns text that chunks into exactly n chunks with testChunker,
// using sentence numbers from first on.
func docText(first, n int) string {
	var parts []string
	for i := 0; i < 2*n; i++ {
		parts = append(parts, sentence(first+i))
	}
	return strings.Join(parts, " ")
}

func testChunker(t *testing.T) *Chunker {
	t.Helper()
	c, err := NewChunker(10, 0, embedding.WordCounter{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func newTestManager(t *testing.T, emb embedding.Embedder, store storage.Store, opts ...ManagerOption) *Manager {
	t.Helper()
	opts = append([]ManagerOption{WithBatchPause(0)}, opts...)
	return NewManager(emb, store, testChunker(t), opts...)
}

func assertAligned(t *testing.T, m *Manager) {
	t.Helper()
	if len(m.cache.Chunks()) != len(m.cache.Embeddings()) {
		t.Fatalf("chunks (%d) and embeddings (%d) out of step", len(m.cache.Chunks()), len(m.cache.Embeddings()))
	}
}

func TestManager_AddDocumentIdempotent(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder(2)
	store := &memStore{}
	m := newTestManager(t, emb, store)

	text := docText(1, 3)
	if err := m.AddDocument(ctx, text, "doc-a"); err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	want := models.Stats{DocumentCount: 1, ChunkCount: 3, EmbeddingCount: 3, IndexBuilt: true}
	if got := m.Stats(); got != want {
		t.Fatalf("Stats() = %+v, want %+v", got, want)
	}
	if emb.calls() != 2 {
		t.Errorf("batch calls = %d, want 2 (3 chunks in batches of 2)", emb.calls())
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
	for i, c := range m.cache.Chunks() {
		if c.Source != "doc-a" || c.ChunkIdx != i {
			t.Errorf("chunk %d = %+v", i, c)
		}
	}

	if err := m.AddDocument(ctx, text, "doc-a"); err != nil {
		t.Fatalf("second AddDocument: %v", err)
	}
	if got := m.Stats(); got != want {
		t.Errorf("Stats() after re-add = %+v, want %+v", got, want)
	}
	if emb.calls() != 2 {
		t.Errorf("unchanged document was embedded again: %d calls", emb.calls())
	}
	if store.saves != 1 {
		t.Errorf("unchanged document was persisted again")
	}
	assertAligned(t, m)
}

func TestManager_AddDocumentTextID(t *testing.T) {
	m := newTestManager(t, newFakeEmbedder(5), &memStore{})
	text := docText(1, 2)
	if m.IsProcessed(text) {
		t.Fatal("IsProcessed before ingestion")
	}
	if err := m.AddDocument(context.Background(), text, ""); err != nil {
		t.Fatal(err)
	}
	if !m.IsProcessed(text) {
		t.Error("IsProcessed(text) = false after ingestion")
	}
	if m.IsProcessed(text + " changed") {
		t.Error("different text reported processed")
	}
	if src := m.cache.Chunks()[0].Source; !strings.HasPrefix(src, "text_") {
		t.Errorf("source = %q, want text_ prefix", src)
	}
}

func TestManager_UpdateRemovesStaleChunks(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newFakeEmbedder(5), &memStore{})

	oldText := docText(1, 3)
	other := docText(50, 1)
	if err := m.AddDocument(ctx, oldText, "doc-a"); err != nil {
		t.Fatal(err)
	}
	if err := m.AddDocument(ctx, other, "doc-b"); err != nil {
		t.Fatal(err)
	}
	if err := m.AddDocument(ctx, docText(100, 2), "doc-a"); err != nil {
		t.Fatal(err)
	}

	stats := m.Stats()
	if stats.DocumentCount != 2 || stats.ChunkCount != 3 {
		t.Fatalf("Stats() = %+v, want 2 documents and 3 chunks", stats)
	}
	assertAligned(t, m)
	for _, c := range m.cache.Chunks() {
		if c.Source == "doc-a" && strings.Contains(c.Text, "Topic1 ") {
			t.Errorf("stale chunk survived: %+v", c)
		}
	}

	// No search for the old content may return an old chunk.
	for _, r := range m.Search(ctx, sentence(1)+" "+sentence(2), 10, -1) {
		if strings.Contains(r.Text, "alpha1 ") || strings.Contains(r.Text, "alpha2 ") {
			t.Errorf("search returned stale chunk %q", r.Text)
		}
	}
	if _, ok := m.cache.Hash("doc-b"); !ok {
		t.Error("unrelated document lost its hash")
	}
	kept := 0
	for _, c := range m.cache.Chunks() {
		if c.Source == "doc-b" {
			kept++
		}
	}
	if kept != 1 {
		t.Errorf("doc-b has %d chunks, want 1", kept)
	}
}

func TestManager_PartialFailureLeavesOrphans(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder(1)
	emb.failCalls[2] = true
	store := &memStore{}
	m := newTestManager(t, emb, store)

	text := docText(1, 3)
	err := m.AddDocument(ctx, text, "doc-a")
	if !errors.Is(err, ErrIncompleteDocument) {
		t.Fatalf("err = %v, want ErrIncompleteDocument", err)
	}
	if emb.calls() != 3 {
		t.Errorf("batch loop stopped early: %d calls", emb.calls())
	}
	stats := m.Stats()
	if stats.DocumentCount != 0 || stats.ChunkCount != 2 {
		t.Fatalf("Stats() = %+v, want the two successful batches kept and no hash", stats)
	}
	if idx := []int{m.cache.Chunks()[0].ChunkIdx, m.cache.Chunks()[1].ChunkIdx}; idx[0] != 0 || idx[1] != 2 {
		t.Errorf("chunk_idx = %v, want [0 2]", idx)
	}
	if store.saves != 0 {
		t.Error("incomplete document must not be persisted")
	}
	if stats.IndexBuilt {
		t.Error("index should be stale after unsaved appends")
	}

	// A later full ingestion appends a second set next to the orphans.
	if err := m.AddDocument(ctx, text, "doc-a"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	stats = m.Stats()
	if stats.DocumentCount != 1 || stats.ChunkCount != 5 {
		t.Errorf("Stats() after retry = %+v, want 1 document and 5 chunks", stats)
	}
	assertAligned(t, m)
}

func TestManager_EmptyAndChunklessDocuments(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder(5)
	m := newTestManager(t, emb, &memStore{})

	for _, text := range []string{"", "  \n\t "} {
		if err := m.AddDocument(ctx, text, "doc"); !errors.Is(err, ErrEmptyText) {
			t.Errorf("AddDocument(%q) err = %v, want ErrEmptyText", text, err)
		}
	}
	if err := m.AddDocument(ctx, "Too short.", "doc"); err != nil {
		t.Errorf("chunkless document err = %v", err)
	}
	if emb.calls() != 0 || m.Stats().DocumentCount != 0 {
		t.Errorf("chunkless document changed state: calls=%d stats=%+v", emb.calls(), m.Stats())
	}
}

func TestManager_Search(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder(5)
	m := newTestManager(t, emb, &memStore{}, WithQueryCache(8))

	if r := m.Search(ctx, "anything", 5, 0.1); r != nil {
		t.Errorf("search on empty cache = %v", r)
	}
	if emb.queryCalls != 0 {
		t.Error("empty cache should not embed the query")
	}

	if err := m.AddDocument(ctx, docText(1, 3), "doc-a"); err != nil {
		t.Fatal(err)
	}
	target := m.cache.Chunks()[1]
	results := m.Search(ctx, target.Text, 5, 0.99)
	if len(results) != 1 || results[0].Text != target.Text || results[0].ChunkIdx != 1 || results[0].Source != "doc-a" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("similarity = %v", results[0].Similarity)
	}

	all := m.Search(ctx, target.Text, 2, -1)
	if len(all) != 2 {
		t.Errorf("k=2 returned %d results", len(all))
	}

	_ = m.Search(ctx, target.Text, 5, 0.99)
	if emb.queryCalls != 1 {
		t.Errorf("query cache missed: %d query embeddings", emb.queryCalls)
	}

	if r := m.Search(ctx, "   ", 5, 0); r != nil {
		t.Errorf("blank query = %v", r)
	}
	emb.failQuery = true
	if r := m.Search(ctx, "uncached query", 5, 0); r != nil {
		t.Errorf("failed query embedding = %v, want no results", r)
	}

	lex := m.SearchLexical("alpha3 charlie3", 5)
	if len(lex) != 1 || !strings.Contains(lex[0].Text, "alpha3") {
		t.Errorf("SearchLexical = %+v", lex)
	}
}

func TestManager_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{storage.BackendJSON, storage.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache."+backend)
			store, err := storage.NewStore(backend, path)
			if err != nil {
				t.Fatal(err)
			}
			m := newTestManager(t, newFakeEmbedder(5), store)
			text := docText(1, 2)
			if err := m.AddDocument(ctx, text, "doc-a"); err != nil {
				t.Fatal(err)
			}
			want := m.Stats()
			if err := m.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			store2, err := storage.NewStore(backend, path)
			if err != nil {
				t.Fatal(err)
			}
			emb := newFakeEmbedder(5)
			m2 := newTestManager(t, emb, store2)
			defer m2.Close()
			if got := m2.Stats(); got != want {
				t.Errorf("reloaded Stats() = %+v, want %+v", got, want)
			}
			if err := m2.AddDocument(ctx, text, "doc-a"); err != nil || emb.calls() != 0 {
				t.Errorf("reloaded document re-embedded: err=%v calls=%d", err, emb.calls())
			}
		})
	}
}

func TestManager_VersionMismatchColdStart(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(docPath, []byte(docText(1, 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	cachePath := filepath.Join(dir, "cache.json")
	stale := fmt.Sprintf(`{"version":"1.1","document_hashes":{%q:"whatever"},"chunks":[{"text":"x","source":%q,"chunk_idx":0}],"embeddings":[[1,0]]}`, docPath, docPath)
	if err := os.WriteFile(cachePath, []byte(stale), 0o600); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, newFakeEmbedder(5), storage.NewJSONStore(cachePath))
	if m.IsProcessed(docPath) {
		t.Error("document from a stale cache reported processed")
	}
	if got := m.Stats(); got != (models.Stats{}) {
		t.Errorf("Stats() = %+v, want empty", got)
	}
}

func TestManager_IsProcessedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.txt")
	text := docText(1, 1)
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	m := newTestManager(t, newFakeEmbedder(5), &memStore{})
	if err := m.AddDocument(ctx, text, path); err != nil {
		t.Fatal(err)
	}
	if !m.IsProcessed(path) {
		t.Fatal("file not processed")
	}
	if err := os.WriteFile(path, []byte(docText(9, 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	if m.IsProcessed(path) {
		t.Error("modified file still reported processed")
	}
}

func TestManager_PersistFailureStaysDirty(t *testing.T) {
	ctx := context.Background()
	store := &memStore{failSave: true}
	m := newTestManager(t, newFakeEmbedder(5), store)

	if err := m.AddDocument(ctx, docText(1, 2), "doc-a"); err == nil {
		t.Fatal("expected persist error")
	}
	if got := m.Stats(); got.DocumentCount != 1 || got.ChunkCount != 2 || got.IndexBuilt {
		t.Errorf("Stats() = %+v, want in-memory document without index", got)
	}

	store.failSave = false
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if store.snap == nil || len(store.snap.Chunks) != 2 || store.snap.DocumentHashes["doc-a"] == "" {
		t.Errorf("Close did not flush dirty state: %+v", store.snap)
	}
}

func TestManager_CloseWithoutChangesDoesNotSave(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, newFakeEmbedder(5), store)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0", store.saves)
	}
}

func TestManager_RemoveAndReset(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	m := newTestManager(t, newFakeEmbedder(5), store)
	_ = m.AddDocument(ctx, docText(1, 2), "doc-a")
	_ = m.AddDocument(ctx, docText(20, 1), "doc-b")

	removed, err := m.RemoveDocument(ctx, "doc-a")
	if err != nil || !removed {
		t.Fatalf("RemoveDocument = (%v, %v)", removed, err)
	}
	if got := m.Stats(); got.DocumentCount != 1 || got.ChunkCount != 1 || !got.IndexBuilt {
		t.Errorf("Stats() after remove = %+v", got)
	}
	if removed, _ := m.RemoveDocument(ctx, "doc-a"); removed {
		t.Error("second remove reported success")
	}

	if err := m.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if got := m.Stats(); got != (models.Stats{}) {
		t.Errorf("Stats() after reset = %+v", got)
	}
	if len(store.snap.Chunks) != 0 || len(store.snap.DocumentHashes) != 0 {
		t.Errorf("reset not persisted: %+v", store.snap)
	}
}

func TestManager_BatchPause(t *testing.T) {
	m := NewManager(newFakeEmbedder(1), &memStore{}, testChunker(t), WithBatchPause(30*time.Millisecond))
	start := time.Now()
	if err := m.AddDocument(context.Background(), docText(1, 3), "doc-a"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("3 batches took %v, want pacing between them", elapsed)
	}
}

func TestManager_BatchSizeClamped(t *testing.T) {
	m := newTestManager(t, newFakeEmbedder(50), &memStore{})
	if m.batchSize != embedding.MaxBatchSize {
		t.Errorf("batchSize = %d, want %d", m.batchSize, embedding.MaxBatchSize)
	}
	m = newTestManager(t, newFakeEmbedder(5), &memStore{}, WithBatchSize(3))
	if m.batchSize != 3 {
		t.Errorf("batchSize = %d, want 3", m.batchSize)
	}
}
