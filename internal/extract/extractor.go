// Package extract turns document files into plain text for ingestion.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for files whose extension has no extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor returns the text content of a document file.
type Extractor interface {
	Extract(path string) (string, error)
}

type extractFunc func(content []byte) (string, error)

// FileExtractor dispatches on the lowercased file extension.
type FileExtractor struct {
	byExt map[string]extractFunc
}

// NewFileExtractor returns an extractor for every format in Extensions.
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{byExt: map[string]extractFunc{
		".pdf":  extractPDF,
		".docx": extractDOCX,
		".pptx": extractPPTX,
		".odp":  extractODP,
		".ods":  extractODS,
		".odt":  extractWithCat,
		".rtf":  extractWithCat,
		".xlsx": extractExcel,
		".txt":  extractPlain,
		".md":   extractPlain,
		".rst":  extractPlain,
	}}
}

// Extensions lists the supported extensions, sorted.
func (e *FileExtractor) Extensions() []string {
	out := make([]string, 0, len(e.byExt))
	for ext := range e.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether ext (with or without the leading dot) can be extracted.
func (e *FileExtractor) Supports(ext string) bool {
	_, ok := e.byExt[normalizeExt(ext)]
	return ok
}

// Extract reads the file at path and returns its text.
func (e *FileExtractor) Extract(path string) (string, error) {
	ext := normalizeExt(filepath.Ext(path))
	if !e.Supports(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content in the format named by ext.
func (e *FileExtractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := e.byExt[normalizeExt(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return fn(content)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
