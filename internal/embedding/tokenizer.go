package embedding

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer names accepted by NewTokenCounter.
const (
	TokenizerCL100K = "cl100k_base"
	TokenizerWords  = "words"
)

// TokenCounter counts tokens the way the embedding model budget is measured.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts BPE tokens with a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, e.g. cl100k_base.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// WordCounter approximates tokens as whitespace-separated words. It needs no
// encoding files, which makes it the offline choice.
type WordCounter struct{}

// Count returns the number of words in text.
func (WordCounter) Count(text string) int {
	return len(SplitWords(text))
}

// NewTokenCounter returns the counter for name.
func NewTokenCounter(name string) (TokenCounter, error) {
	switch name {
	case "", TokenizerCL100K:
		return NewTiktokenCounter(TokenizerCL100K)
	case TokenizerWords:
		return WordCounter{}, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

// SplitWords splits text on Unicode whitespace and returns non-empty words.
func SplitWords(text string) []string {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic 64-bit FNV-1a hash of s.
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
