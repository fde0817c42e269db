package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as text; invalid UTF-8 becomes U+FFFD.
func extractPlain(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	return strings.ToValidUTF8(string(content), "\ufffd"), nil
}
