package indexer

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/veritas/internal/embedding"
)

// sentence returns a five-word sentence whose words are unique to n.
func sentence(n int) string {
	return fmt.Sprintf("Topic%d alpha%d bravo%d charlie%d delta%d.", n, n, n, n, n)
}

func newWordChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap, embedding.WordCounter{}, nil)
	if err != nil {
		t.Fatalf("NewChunker(%d, %d): %v", size, overlap, err)
	}
	return c
}

func TestNewChunker_validation(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		overlap  int
		patterns []string
	}{
		{"overlap equals size", 10, 10, nil},
		{"overlap exceeds size", 10, 20, nil},
		{"zero size", 0, 0, nil},
		{"negative overlap", 10, -1, nil},
		{"bad pattern", 10, 2, []string{"("}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap, embedding.WordCounter{}, tt.patterns)
			if !errors.Is(err, ErrInvalidChunkConfig) {
				t.Errorf("err = %v, want ErrInvalidChunkConfig", err)
			}
		})
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := newWordChunker(t, 512, 64)
	for _, in := range []string{"", "   \n\t  ", "Page 3\n2024/01/02"} {
		if chunks := c.Chunk(in); chunks != nil {
			t.Errorf("Chunk(%q) = %v, want nil", in, chunks)
		}
	}
}

func TestChunker_ShortTextDropped(t *testing.T) {
	c := newWordChunker(t, 512, 64)
	if chunks := c.Chunk("Short sentence here."); len(chunks) != 0 {
		t.Errorf("chunks under 50 characters should be dropped, got %v", chunks)
	}
}

func TestChunker_PackingWithOverlap(t *testing.T) {
	c := newWordChunker(t, 12, 5)
	var parts []string
	for i := 1; i <= 6; i++ {
		parts = append(parts, sentence(i))
	}
	chunks := c.Chunk(strings.Join(parts, " "))

	want := []string{
		sentence(1) + " " + sentence(2),
		sentence(2) + " " + sentence(3),
		sentence(3) + " " + sentence(4),
		sentence(4) + " " + sentence(5),
		sentence(5) + " " + sentence(6),
	}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("chunks =\n%q\nwant\n%q", chunks, want)
	}
	for i, ch := range chunks {
		if n := len(embedding.SplitWords(ch)); n > 12 {
			t.Errorf("chunk %d has %d tokens, budget is 12", i, n)
		}
	}
}

func TestChunker_NoOverlap(t *testing.T) {
	c := newWordChunker(t, 10, 0)
	text := strings.Join([]string{sentence(1), sentence(2), sentence(3), sentence(4)}, " ")
	chunks := c.Chunk(text)
	want := []string{sentence(1) + " " + sentence(2), sentence(3) + " " + sentence(4)}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("chunks = %q, want %q", chunks, want)
	}
}

func TestChunker_OversizedSentenceKept(t *testing.T) {
	c := newWordChunker(t, 10, 2)
	var words []string
	for i := 0; i < 30; i++ {
		words = append(words, fmt.Sprintf("word%02d", i))
	}
	long := strings.Join(words, " ") + "."
	chunks := c.Chunk(long)
	if len(chunks) != 1 || chunks[0] != long {
		t.Errorf("oversized sentence should be one chunk, got %q", chunks)
	}
}

func TestChunker_Deterministic(t *testing.T) {
	c := newWordChunker(t, 12, 5)
	text := strings.Join([]string{sentence(1), sentence(2), sentence(3)}, "\n\n")
	a := c.Chunk(text)
	b := c.Chunk(text)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Chunk is not deterministic: %q vs %q", a, b)
	}
}

func TestSplitSentences(t *testing.T) {
	text := "Dr. Smith arrived at the lab today. He used e.g. the new device to measure it! " +
		"Was it accurate? Yes; very accurate indeed."
	got := splitSentences(text)
	want := []string{
		"Dr. Smith arrived at the lab today.",
		"He used e.g. the new device to measure it!",
		"Was it accurate?",
		"very accurate indeed.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitSentences =\n%q\nwant\n%q", got, want)
	}
}

func TestSplitSentences_unicode(t *testing.T) {
	got := splitSentences("Ça commence très bien ici. Ensuite ça continue là-bas.")
	want := []string{"Ça commence très bien ici.", "Ensuite ça continue là-bas."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitSentences = %q, want %q", got, want)
	}
}

func TestChunker_clean(t *testing.T) {
	c := newWordChunker(t, 512, 64)
	in := "  Title PAGE 12 line\n\n\n\n\nNext   part 2023/01/05 end\fmore  family tree "
	got := c.clean(in)
	want := "Title line\n\nNext part end\nmore tree"
	if got != want {
		t.Errorf("clean = %q, want %q", got, want)
	}
}

func TestChunker_customPatterns(t *testing.T) {
	c, err := NewChunker(512, 64, embedding.WordCounter{}, []string{`CONFIDENTIAL`})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.clean("Family confidential notes"); got != "Family notes" {
		t.Errorf("clean = %q", got)
	}
	c, _ = NewChunker(512, 64, embedding.WordCounter{}, []string{})
	if got := c.clean("Page 1 Family"); got != "Page 1 Family" {
		t.Errorf("empty pattern list should disable stripping, got %q", got)
	}
}

func TestIsNoise(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  bool
	}{
		{"too few words", "only nine words are present in this tiny chunk", true},
		{"normal prose", "The retrieval engine stores every chunk next to its embedding vector for search.", false},
		{"punctuation heavy", "a; b; c; d; e; f; g; h; i; j; ---- ==== ++++ **** #### @@@@ !!!!", true},
		{"repeated word", "data data data one two three four five six seven eight", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNoise(tt.chunk); got != tt.want {
				t.Errorf("isNoise(%q) = %v, want %v", tt.chunk, got, tt.want)
			}
		})
	}
}

func TestPreprocess(t *testing.T) {
	if Preprocess("  a  b\n\tc  ") != "a b c" {
		t.Error("expected trimmed and collapsed whitespace")
	}
}
