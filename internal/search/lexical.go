package search

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/hyperjump/veritas/internal/models"
)

const (
	minLexicalTokenLen = 3
	lexicalScale       = 0.95
	lexicalCap         = 0.99
)

var lexicalTokenRe = regexp.MustCompile(`[a-z0-9]+`)

// lexicalTokens returns the distinct lowercase alphanumeric tokens of query
// that are at least three characters long.
func lexicalTokens(query string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, t := range lexicalTokenRe.FindAllString(strings.ToLower(query), -1) {
		if len(t) < minLexicalTokenLen || seen[t] {
			continue
		}
		seen[t] = true
		tokens = append(tokens, t)
	}
	return tokens
}

// SearchLexical scores each chunk by how many query tokens it contains as
// substrings plus one per '%' in its text, and returns the top k with a
// pseudo-similarity relative to the best score, capped below 1.
func (e *Engine) SearchLexical(query string, k int) []models.SearchResult {
	chunks := e.corpus.Chunks()
	if strings.TrimSpace(query) == "" || len(chunks) == 0 || k <= 0 {
		return nil
	}
	tokens := lexicalTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}
	var hits []scored
	for i, c := range chunks {
		lower := strings.ToLower(c.Text)
		score := 0
		for _, t := range tokens {
			if strings.Contains(lower, t) {
				score++
			}
		}
		score += strings.Count(lower, "%")
		if score > 0 {
			hits = append(hits, scored{pos: i, score: float64(score)})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	top := hits[0].score
	results := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		sim := math.Min(lexicalCap, h.score/(top+1e-6)*lexicalScale)
		results[i] = toResult(chunks[h.pos], sim)
	}
	return results
}
