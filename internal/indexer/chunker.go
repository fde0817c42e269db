package indexer

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/hyperjump/veritas/internal/embedding"
)

// Chunking thresholds, in characters unless noted.
const (
	minSentenceLen = 10 // sentences must be longer than this
	minChunkLen    = 50
	minChunkWords  = 10
	maxPunctRatio  = 0.4
	maxWordShare   = 0.2
)

// ErrInvalidChunkConfig is returned for a non-positive size or an overlap not smaller than the size.
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// sentenceEndRe splits after . ? ! or ; followed by whitespace, except after
// dotted abbreviations (e.g.) and capitalised initials (Mr.).
var sentenceEndRe = regexp2.MustCompile(`(?<!\w\.\w.)(?<![A-Z][a-z]\.)(?<=\.|\?|\!|;)\s+`, regexp2.None)

// Chunker splits text into sentence-aligned chunks bounded by a token budget.
type Chunker struct {
	chunkSize   int
	overlap     int
	counter     embedding.TokenCounter
	boilerplate *regexp2.Regexp
}

// NewChunker creates a chunker with the given size and overlap, both in
// tokens as measured by counter. A nil patterns slice selects
// DefaultBoilerplatePatterns; an empty one disables boilerplate stripping.
func NewChunker(chunkSize, overlap int, counter embedding.TokenCounter, patterns []string) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap (%d) must be smaller than chunk size (%d)", ErrInvalidChunkConfig, overlap, chunkSize)
	}
	if counter == nil {
		counter = embedding.WordCounter{}
	}
	if patterns == nil {
		patterns = DefaultBoilerplatePatterns
	}
	boilerplate, err := compileBoilerplate(patterns)
	if err != nil {
		return nil, fmt.Errorf("%w: boilerplate patterns: %v", ErrInvalidChunkConfig, err)
	}
	return &Chunker{
		chunkSize:   chunkSize,
		overlap:     overlap,
		counter:     counter,
		boilerplate: boilerplate,
	}, nil
}

// Chunk returns the chunks of text in document order. Whitespace-only input
// yields no chunks. A single sentence larger than the budget becomes its own
// oversized chunk rather than being cut.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	cleaned := c.clean(text)
	if cleaned == "" {
		return nil
	}
	sentences := splitSentences(cleaned)
	if len(sentences) == 0 {
		return nil
	}

	var out []string
	for _, chunk := range c.pack(sentences) {
		chunk = Preprocess(chunk)
		if utf8.RuneCountInString(chunk) >= minChunkLen && !isNoise(chunk) {
			out = append(out, chunk)
		}
	}
	return out
}

func splitSentences(text string) []string {
	runes := []rune(text)
	var parts []string
	last := 0
	m, _ := sentenceEndRe.FindRunesMatch(runes)
	for m != nil {
		parts = append(parts, string(runes[last:m.Index]))
		last = m.Index + m.Length
		m, _ = sentenceEndRe.FindNextMatch(m)
	}
	parts = append(parts, string(runes[last:]))

	sentences := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if utf8.RuneCountInString(p) > minSentenceLen {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// pack greedily fills chunks up to the token budget. When a sentence would
// overflow a non-empty chunk, the chunk is emitted and the next one is seeded
// with the longest run of trailing sentences that fits in the overlap budget.
func (c *Chunker) pack(sentences []string) []string {
	var (
		chunks        []string
		current       []string
		currentTokens []int
		total         int
	)
	emit := func() {
		text := strings.Join(current, " ")
		if utf8.RuneCountInString(text) >= minChunkLen {
			chunks = append(chunks, text)
		}
	}

	for _, s := range sentences {
		tokens := c.counter.Count(s)
		if total+tokens > c.chunkSize && len(current) > 0 {
			emit()

			start := len(current)
			overlapTokens := 0
			for start > 0 && overlapTokens+currentTokens[start-1] <= c.overlap {
				start--
				overlapTokens += currentTokens[start]
			}
			current = append([]string(nil), current[start:]...)
			currentTokens = append([]int(nil), currentTokens[start:]...)
			total = overlapTokens
		}
		current = append(current, s)
		currentTokens = append(currentTokens, tokens)
		total += tokens
	}
	if len(current) > 0 {
		emit()
	}
	return chunks
}

// isNoise reports chunks that are too short in words, mostly punctuation, or
// dominated by one repeated word.
func isNoise(chunk string) bool {
	words := embedding.SplitWords(chunk)
	if len(words) < minChunkWords {
		return true
	}

	punct, length := 0, 0
	for _, r := range chunk {
		length++
		if !isWordRune(r) && !unicode.IsSpace(r) {
			punct++
		}
	}
	if float64(punct)/float64(length) > maxPunctRatio {
		return true
	}

	freq := make(map[string]int, len(words))
	maxFreq := 0
	for _, w := range words {
		freq[w]++
		if freq[w] > maxFreq {
			maxFreq = freq[w]
		}
	}
	return float64(maxFreq) > float64(len(words))*maxWordShare
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
