package indexer

import (
	"context"
	"time"

	"github.com/hyperjump/veritas/internal/models"
)

// Searcher is the read side shared by Manager and Locked.
type Searcher interface {
	Search(ctx context.Context, query string, k int, minSimilarity float64) []models.SearchResult
	SearchLexical(query string, k int) []models.SearchResult
}

// RunQuery answers a validated query semantically and, when that finds
// nothing and q.LexicalFallback is set, lexically.
func RunQuery(ctx context.Context, s Searcher, q models.SearchQuery) models.SearchResponse {
	start := time.Now()
	resp := models.SearchResponse{Query: q.Query, Mode: models.ModeNone}

	minSim := models.DefaultMinSimilarity
	if q.MinSimilarity != nil {
		minSim = *q.MinSimilarity
	}
	if results := s.Search(ctx, q.Query, q.K, minSim); len(results) > 0 {
		resp.Mode = models.ModeSemantic
		resp.Results = results
	} else if q.LexicalFallback {
		if results := s.SearchLexical(q.Query, q.K); len(results) > 0 {
			resp.Mode = models.ModeLexical
			resp.Results = results
		}
	}
	if resp.Results == nil {
		resp.Results = []models.SearchResult{}
	}
	resp.Total = len(resp.Results)
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp
}
