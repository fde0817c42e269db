package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Journal front-matter lines that carry no content.
var (
	journalHomepageRe = regexp.MustCompile(`(?i)journal homepage:.*?\n`)
	keywordsLineRe    = regexp.MustCompile(`(?im)^\s*Keywords:.*?\n`)
	correspondingRe   = regexp.MustCompile(`(?im)^\s*Corresponding author:.*?\n`)
	blankLinesRe      = regexp.MustCompile(`\n\s*\n`)
)

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return cleanPDFText(strings.Join(pages, "\n")), nil
}

// cleanPDFText drops journal front matter and collapses runs of blank lines.
func cleanPDFText(text string) string {
	text = journalHomepageRe.ReplaceAllString(text, "")
	text = keywordsLineRe.ReplaceAllString(text, "")
	text = correspondingRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
