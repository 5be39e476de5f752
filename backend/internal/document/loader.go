package document

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scopegraph/backend/internal/extraction"
	"scopegraph/backend/internal/graph"
)

// Loaded is the text form of one ingested document
type Loaded struct {
	Title string
	Text  string
}

// Load converts a document body into plain text for extraction. HTML gets
// its markup stripped; everything else is treated as plain text.
func Load(r io.Reader, filename string) (*Loaded, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm", ".xhtml":
		return loadHTML(r, filename)
	default:
		return loadPlain(r, filename)
	}
}

func loadPlain(r io.Reader, filename string) (*Loaded, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", filename, err)
	}
	return &Loaded{
		Title: titleFromFilename(filename),
		Text:  normalizeWhitespace(string(body)),
	}, nil
}

func loadHTML(r io.Reader, filename string) (*Loaded, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML document %s: %w", filename, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = titleFromFilename(filename)
	}

	doc.Find("script, style, noscript, head").Remove()

	// Walk block-level elements so paragraph boundaries survive as newlines
	var blocks []string
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, td").Each(func(_ int, s *goquery.Selection) {
		// Skip containers whose text is already covered by a nested block
		if s.Find("p, li").Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text != "" {
			blocks = append(blocks, normalizeWhitespace(text))
		}
	})

	text := strings.Join(blocks, "\n\n")
	if text == "" {
		// No block structure; fall back to the whole body text
		text = normalizeWhitespace(doc.Find("body").Text())
	}

	return &Loaded{Title: title, Text: text}, nil
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// normalizeWhitespace collapses runs of spaces and tabs but keeps paragraph
// breaks, so chunk boundaries can still find them
func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lines := strings.Split(s, "\n")
	blankRun := 0
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			blankRun++
			continue
		}
		if b.Len() > 0 {
			if blankRun > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		blankRun = 0
		b.WriteString(strings.Join(fields, " "))
	}
	return b.String()
}

// ToContent wraps loaded text as pipeline input, chunking when it exceeds
// the single-chunk size
func (l *Loaded) ToContent(sourcePath string, scope graph.Scope, ownerID string) extraction.Content {
	chunks := SplitChunks(l.Text, DefaultChunkSize, DefaultChunkOverlap)
	if len(chunks) == 1 {
		chunks = nil // the pipeline treats unchunked content as one unit
	}
	return extraction.Content{
		Text:   l.Text,
		Chunks: chunks,
		Source: extraction.SourceMetadata{
			Kind:       extraction.SourceKindDocument,
			Title:      l.Title,
			SourcePath: sourcePath,
		},
		Scope:   scope,
		OwnerID: ownerID,
	}
}
