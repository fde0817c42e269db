package models

// SearchResult is a single ranked hit.
type SearchResult struct {
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
	ChunkIdx   int     `json:"chunk_idx"`
}

// Search modes reported in SearchResponse.
const (
	ModeSemantic = "semantic"
	ModeLexical  = "lexical"
	ModeNone     = "none"
)

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query   string         `json:"query"`
	Mode    string         `json:"mode"`
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
	// QueryTime is wall time in milliseconds.
	QueryTime int64 `json:"query_time_ms"`
}
