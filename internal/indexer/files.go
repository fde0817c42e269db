package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/veritas/internal/extract"
)

// ErrNoText is returned when a file yields no extractable text.
var ErrNoText = errors.New("no text extracted")

// IngestReport counts the outcome of an IndexDirectory run.
type IngestReport struct {
	Found   int      `json:"found"`
	Indexed int      `json:"indexed"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// IndexFile extracts path and adds it under its path as document id. Files
// already recorded with their current content are skipped; skipped reports
// whether that happened.
func (m *Manager) IndexFile(ctx context.Context, path string, ex extract.Extractor) (skipped bool, err error) {
	if m.IsProcessed(path) {
		m.logger.Debug("skipping processed file", zap.String("path", path))
		return true, nil
	}
	text, err := ex.Extract(path)
	if err != nil {
		return false, fmt.Errorf("extract %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return false, fmt.Errorf("%s: %w", path, ErrNoText)
	}
	if err := m.AddDocument(ctx, text, path); err != nil {
		return false, err
	}
	return false, nil
}

// IndexDirectory walks dir and indexes every regular file whose extension is
// in exts (all files when exts is empty). A failing document is logged and
// counted; it never stops the walk.
func (m *Manager) IndexDirectory(ctx context.Context, dir string, exts []string, ex extract.Extractor) (IngestReport, error) {
	var report IngestReport
	info, err := os.Stat(dir)
	if err != nil {
		return report, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("not a directory: %s", dir)
	}

	paths, err := listDocuments(dir, exts)
	if err != nil {
		return report, err
	}
	report.Found = len(paths)
	if len(paths) == 0 {
		m.logger.Warn("no documents found", zap.String("dir", dir), zap.Strings("extensions", exts))
		return report, nil
	}
	m.logger.Info("found documents", zap.String("dir", dir), zap.Int("count", len(paths)))

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		skipped, err := m.IndexFile(ctx, path, ex)
		switch {
		case err != nil:
			report.Failed++
			report.Errors = append(report.Errors, err.Error())
			m.logger.Error("failed to index document", zap.String("path", path), zap.Error(err))
		case skipped:
			report.Skipped++
		default:
			report.Indexed++
			m.logger.Info("indexed document", zap.String("path", path), zap.Int("n", i+1), zap.Int("of", len(paths)))
		}
	}
	return report, nil
}

// listDocuments returns the regular files under dir with an allowed
// extension, in lexical order. Symlinks are followed for the file check.
func listDocuments(dir string, exts []string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(exts) > 0 && !extensionAllowed(filepath.Ext(path), exts) {
			return nil
		}
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return paths, nil
}

// extensionAllowed compares ext with allowed case-insensitively, ignoring
// leading dots on either side.
func extensionAllowed(ext string, allowed []string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}

// ExtensionAllowed is extensionAllowed for callers outside the package.
func ExtensionAllowed(path string, allowed []string) bool {
	return len(allowed) == 0 || extensionAllowed(filepath.Ext(path), allowed)
}
