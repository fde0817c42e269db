package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultBodyPath = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix     = "ppt/slides/slide"
	openDocumentContent = "content.xml"
)

var (
	wordTextRe  = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	slideTextRe = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	// OpenDocument paragraphs, headings and spans, in document order.
	odfTextRe = regexp.MustCompile(`<text:(?:p|h|span)[^>]*>([^<]*)</text:(?:p|h|span)>`)

	// The main part may be declared with its attributes in either order.
	docxPartRe = []*regexp.Regexp{
		regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`),
		regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`),
	}
)

// zipPackage is an opened OOXML or OpenDocument container.
type zipPackage struct {
	format string
	zr     *zip.Reader
}

func openPackage(format string, content []byte) (*zipPackage, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	return &zipPackage{format: format, zr: zr}, nil
}

// read returns the named part, or ok=false when the package has no such part.
func (p *zipPackage) read(name string) (data []byte, ok bool, err error) {
	for _, f := range p.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, fmt.Errorf("extract %s: open %s: %w", p.format, name, err)
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		if err != nil {
			return nil, true, fmt.Errorf("extract %s: read %s: %w", p.format, name, err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

// mustRead is read for parts the format requires.
func (p *zipPackage) mustRead(name string) ([]byte, error) {
	data, ok, err := p.read(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("extract %s: %s not found", p.format, name)
	}
	return data, nil
}

// joinMatches concatenates the first capture group of every match of re,
// separated by single spaces.
func joinMatches(b *strings.Builder, re *regexp.Regexp, xml []byte) {
	for _, m := range re.FindAllSubmatch(xml, -1) {
		text := strings.TrimSpace(string(m[1]))
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
}

func extractDOCX(content []byte) (string, error) {
	pkg, err := openPackage("DOCX", content)
	if err != nil {
		return "", err
	}
	body := docxDefaultBodyPath
	if types, ok, _ := pkg.read(contentTypesPath); ok {
		for _, re := range docxPartRe {
			if m := re.FindSubmatch(types); m != nil {
				body = strings.TrimPrefix(string(m[1]), "/")
				break
			}
		}
	}
	xml, err := pkg.mustRead(body)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	joinMatches(&b, wordTextRe, xml)
	return b.String(), nil
}

func extractPPTX(content []byte) (string, error) {
	pkg, err := openPackage("PPTX", content)
	if err != nil {
		return "", err
	}
	var slides []string
	for _, f := range pkg.zr.File {
		if strings.HasPrefix(f.Name, pptxSlidePrefix) && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f.Name)
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slideNumber(slides[i]) < slideNumber(slides[j]) })

	var b strings.Builder
	for _, name := range slides {
		xml, err := pkg.mustRead(name)
		if err != nil {
			return "", err
		}
		joinMatches(&b, slideTextRe, xml)
	}
	return b.String(), nil
}

// slideNumber parses N out of ppt/slides/slideN.xml; unparsable names sort first.
func slideNumber(name string) int {
	n := 0
	for _, r := range strings.TrimSuffix(strings.TrimPrefix(name, pptxSlidePrefix), ".xml") {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func extractOpenDocument(format string, content []byte) (string, error) {
	pkg, err := openPackage(format, content)
	if err != nil {
		return "", err
	}
	xml, err := pkg.mustRead(openDocumentContent)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	joinMatches(&b, odfTextRe, xml)
	return b.String(), nil
}

func extractODP(content []byte) (string, error) { return extractOpenDocument("ODP", content) }

func extractODS(content []byte) (string, error) { return extractOpenDocument("ODS", content) }
