package indexer

import (
	"context"
	"errors"

	"github.com/hyperjump/veritas/internal/extract"
)

// FileSink feeds file changes from the documents watcher into a Locked
// manager. Files are identified by path, as IndexDirectory does.
type FileSink struct {
	Manager   *Locked
	Extractor extract.Extractor
}

// Index (re-)indexes path. Files without text are ignored.
func (s FileSink) Index(ctx context.Context, path string) error {
	_, err := s.Manager.IndexFile(ctx, path, s.Extractor)
	if errors.Is(err, ErrNoText) {
		return nil
	}
	return err
}

// Remove drops every chunk of path.
func (s FileSink) Remove(ctx context.Context, path string) error {
	_, err := s.Manager.RemoveDocument(ctx, path)
	return err
}
