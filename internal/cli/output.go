// Package cli renders search results and corpus status for the terminal and
// talks to a running server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/veritas/internal/indexer"
	"github.com/hyperjump/veritas/internal/models"
	"github.com/hyperjump/veritas/pkg/utils"
)

// Format selects how output is rendered.
type Format string

const (
	// FormatText is human-readable text (default).
	FormatText Format = "text"
	// FormatCompact prints one result per line.
	FormatCompact Format = "compact"
	// FormatJSON is indented JSON for other programs.
	FormatJSON Format = "json"
)

// snippetLen bounds the chunk text shown per result in text output.
const snippetLen = 300

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatCompact, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResponse renders resp to w.
func WriteSearchResponse(w io.Writer, resp models.SearchResponse, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, resp)
	case FormatCompact:
		for _, r := range resp.Results {
			text := strings.Join(strings.Fields(r.Text), " ")
			fmt.Fprintf(w, "%.4f\t%s#%d\t%s\n", r.Similarity, r.Source, r.ChunkIdx, utils.Truncate(text, 120))
		}
		return nil
	default:
		writeSearchText(w, resp)
		return nil
	}
}

func writeSearchText(w io.Writer, resp models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%s)\n\n", resp.Total, resp.QueryTime, resp.Mode)
	for i, r := range resp.Results {
		fmt.Fprintln(w, strings.Repeat("-", 60))
		fmt.Fprintf(w, "#%d  similarity %.4f\n", i+1, r.Similarity)
		fmt.Fprintf(w, "Source: %s (chunk %d)\n", r.Source, r.ChunkIdx)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(strings.TrimSpace(r.Text), snippetLen))
	}
}

// WriteStatus renders the corpus status to w.
func WriteStatus(w io.Writer, st models.Status, f Format) error {
	if f == FormatJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:        %d\n", st.DocumentCount)
	fmt.Fprintf(w, "chunks:           %d\n", st.ChunkCount)
	fmt.Fprintf(w, "embeddings:       %d\n", st.EmbeddingCount)
	fmt.Fprintf(w, "index_built:      %t\n", st.IndexBuilt)
	if st.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes: %d\n", *st.DiskUsageBytes)
	}
	if st.CachePath != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# storage")
		fmt.Fprintf(w, "cache_path:       %s\n", st.CachePath)
		fmt.Fprintf(w, "cache_backend:    %s\n", st.CacheBackend)
		fmt.Fprintf(w, "index_type:       %s\n", st.IndexType)
	}
	return nil
}

// WriteIngestReport summarises a directory run.
func WriteIngestReport(w io.Writer, dir string, r indexer.IngestReport) {
	fmt.Fprintf(w, "%s: %d found, %d indexed, %d unchanged, %d failed\n", dir, r.Found, r.Indexed, r.Skipped, r.Failed)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
