package models

import "fmt"

// Search defaults shared by the API and the CLI.
const (
	DefaultK             = 30
	DefaultMinSimilarity = 0.10
	MaxK                 = 200
)

// SearchQuery represents a search request.
type SearchQuery struct {
	Query         string   `json:"query"`
	K             int      `json:"k,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
	// LexicalFallback runs a lexical search when the semantic pass returns nothing.
	LexicalFallback bool `json:"lexical_fallback,omitempty"`
}

// Validate ensures the query is usable and fills in defaults.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.K <= 0 {
		q.K = DefaultK
	}
	if q.K > MaxK {
		q.K = MaxK
	}
	if q.MinSimilarity == nil {
		v := DefaultMinSimilarity
		q.MinSimilarity = &v
	}
	if *q.MinSimilarity < -1 || *q.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be within [-1, 1], got %v", *q.MinSimilarity)
	}
	return nil
}
