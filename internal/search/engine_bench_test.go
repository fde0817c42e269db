package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/veritas/internal/embedding"
)

// benchCorpus holds n mock embeddings of dimension dim.
func benchCorpus(b *testing.B, n, dim int) (*memCorpus, []float32) {
	b.Helper()
	e := embedding.NewMockEmbedder(dim)
	ctx := context.Background()
	c := &memCorpus{}
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("chunk number %d about topic %d", i, i%17)
		vec, err := e.Embed(ctx, text)
		if err != nil {
			b.Fatal(err)
		}
		c.add(text, "doc", i, vec)
	}
	q, _ := e.Embed(ctx, "topic 3")
	return c, q
}

func BenchmarkEngine_SearchIndexed(b *testing.B) {
	c, q := benchCorpus(b, 2000, 384)
	e := NewEngine(c, nil)
	if err := e.Rebuild(context.Background()); err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Search(ctx, q, 30, 0.1)
	}
}

func BenchmarkEngine_SearchBruteForce(b *testing.B) {
	c, q := benchCorpus(b, 2000, 384)
	e := NewEngine(c, nil)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Search(ctx, q, 30, 0.1)
	}
}

func BenchmarkEngine_SearchLexical(b *testing.B) {
	c, _ := benchCorpus(b, 2000, 8)
	e := NewEngine(c, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.SearchLexical("topic number 3", 30)
	}
}
