// Package fileid derives document identities and content hashes.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const (
	textPrefix = "text_"
	// readBufferSize is the chunk size used when streaming a file into the hash.
	readBufferSize = 8192
)

// FileHash returns the hex SHA-256 of the file's bytes, read in fixed-size blocks.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, readBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// TextHash returns the hex SHA-256 of the UTF-8 bytes of text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// TextDocID returns the ephemeral document id used for text with no backing file.
func TextDocID(text string) string {
	return textPrefix + TextHash(text)
}

// IsRegularFile reports whether path names an existing regular file.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Resolve returns the document id and content hash for source. An existing
// regular file is identified by the path exactly as given and hashed by
// content; anything else is treated as literal text.
func Resolve(source string) (id, hash string, err error) {
	if IsRegularFile(source) {
		hash, err = FileHash(source)
		if err != nil {
			return "", "", err
		}
		return source, hash, nil
	}
	return TextDocID(source), TextHash(source), nil
}
