package indexer

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
)

// DefaultBoilerplatePatterns strip the running headers and footers found in
// patent family exports. Matching is case-insensitive.
var DefaultBoilerplatePatterns = []string{
	`Â?©Questel - FAMPAT`,
	`Page \d+`,
	`\d{4}/\d{2}/\d{2}`,
	`Publication numbers`,
	`Current assignees`,
	`Inventors`,
	`Priority data including date`,
	`Family`,
	`IPC - International classification`,
	`CPC - Cooperative classification`,
}

var (
	blankLinesRe = regexp2.MustCompile(`\n\s*\n\s*\n+`, regexp2.None)
	spaceRunRe   = regexp2.MustCompile(` +`, regexp2.None)
)

// compileBoilerplate joins patterns into one case-insensitive alternation.
// It returns nil when there is nothing to strip.
func compileBoilerplate(patterns []string) (*regexp2.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	return regexp2.Compile(strings.Join(patterns, "|"), regexp2.IgnoreCase)
}

// clean strips boilerplate, squeezes blank-line runs to a single blank line
// and space runs to one space, turns form feeds into newlines, and trims.
func (c *Chunker) clean(text string) string {
	if c.boilerplate != nil {
		text = replaceAll(c.boilerplate, text, "")
	}
	text = replaceAll(blankLinesRe, text, "\n\n")
	text = replaceAll(spaceRunRe, text, " ")
	text = strings.ReplaceAll(text, "\f", "\n")
	return strings.TrimSpace(text)
}

func replaceAll(re *regexp2.Regexp, text, repl string) string {
	out, err := re.Replace(text, repl, -1, -1)
	if err != nil {
		// Only a match timeout can fail here, and none is configured.
		return text
	}
	return out
}

// Preprocess normalizes text for indexing (trim, collapse whitespace).
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
