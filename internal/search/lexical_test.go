package search

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/veritas/internal/models"
)

func lexicalCorpus() *memCorpus {
	c := &memCorpus{}
	for i, text := range []string{
		"Revenue grew 12% while margin fell 3%.",
		"The revenue report covers the fiscal year.",
		"Nothing relevant in this paragraph.",
		"Fiscal revenue and growth outlook.",
	} {
		c.add(text, "report", i, []float32{1})
	}
	return c
}

func TestLexicalTokens(t *testing.T) {
	got := lexicalTokens("What is the REVENUE, revenue growth in Q3 of 2023?")
	want := []string{"what", "the", "revenue", "growth", "2023"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("lexicalTokens = %q, want %q", got, want)
	}
	if lexicalTokens("a of Q3") != nil {
		t.Error("short tokens should be dropped")
	}
}

func TestEngine_SearchLexical(t *testing.T) {
	e := NewEngine(lexicalCorpus(), nil)
	results := e.SearchLexical("fiscal revenue", 10)

	// Scores: chunk0 = 1 + 2 percent signs = 3, chunk1 = 2, chunk3 = 2, chunk2 = 0.
	gotIdx := make([]int, len(results))
	for i, r := range results {
		gotIdx[i] = r.ChunkIdx
	}
	if want := []int{0, 1, 3}; !reflect.DeepEqual(gotIdx, want) {
		t.Fatalf("order = %v, want %v (stable for ties)", gotIdx, want)
	}
	if results[0].Similarity < 0.94 || results[0].Similarity > 0.99 {
		t.Errorf("top pseudo-similarity = %v, want about 0.95", results[0].Similarity)
	}
	if want := 2.0 / 3.0 * 0.95; results[1].Similarity < want-1e-4 || results[1].Similarity > want+1e-4 {
		t.Errorf("second pseudo-similarity = %v, want %v", results[1].Similarity, want)
	}

	if r := e.SearchLexical("fiscal revenue", 1); len(r) != 1 || r[0].ChunkIdx != 0 {
		t.Errorf("k=1 = %+v", r)
	}
}

func TestEngine_SearchLexicalEmpty(t *testing.T) {
	e := NewEngine(lexicalCorpus(), nil)
	for _, q := range []string{"", "   ", "a an"} {
		if r := e.SearchLexical(q, 5); r != nil {
			t.Errorf("SearchLexical(%q) = %v", q, r)
		}
	}
	// Percent signs score on their own, so only the figures chunk survives
	// a query that matches no token.
	r := e.SearchLexical("zebra", 5)
	if len(r) != 1 || !strings.Contains(r[0].Text, "%") {
		t.Errorf("SearchLexical(zebra) = %v, want only the chunk with percent signs", r)
	}

	plain := &memCorpus{}
	for i, text := range []string{"The revenue report covers the fiscal year.", "Fiscal revenue and growth outlook."} {
		plain.add(text, "report", i, []float32{1})
	}
	if r := NewEngine(plain, nil).SearchLexical("zebra", 5); r != nil {
		t.Errorf("no match should be empty, got %v", r)
	}
	empty := NewEngine(&memCorpus{chunks: []models.Chunk{}}, nil)
	if r := empty.SearchLexical("revenue", 5); r != nil {
		t.Errorf("empty corpus = %v", r)
	}
}
