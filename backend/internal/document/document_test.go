package document

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scopegraph/backend/internal/graph"
)

func TestLoad_HTML(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head>
	<title>Trip Notes</title>
	<style>body { color: red; }</style>
	<script>alert("nope")</script>
</head>
<body>
	<h1>Summer in Lisbon</h1>
	<p>Alice   visited   Lisbon in June.</p>
	<p>She works at <b>Acme Corp</b>.</p>
</body>
</html>`

	loaded, err := Load(strings.NewReader(html), "trip.html")
	require.NoError(t, err)

	assert.Equal(t, "Trip Notes", loaded.Title)
	assert.Contains(t, loaded.Text, "Summer in Lisbon")
	assert.Contains(t, loaded.Text, "Alice visited Lisbon in June.")
	assert.Contains(t, loaded.Text, "She works at Acme Corp.")
	assert.NotContains(t, loaded.Text, "alert")
	assert.NotContains(t, loaded.Text, "color: red")
}

func TestLoad_HTMLTitleFallsBackToHeading(t *testing.T) {
	html := `<html><body><h1>Quarterly Report</h1><p>Numbers went up.</p></body></html>`

	loaded, err := Load(strings.NewReader(html), "q3.html")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", loaded.Title)
}

func TestLoad_PlainText(t *testing.T) {
	loaded, err := Load(strings.NewReader("line one\t\twith   tabs\n\n\n\nsecond paragraph\n"), "notes.txt")
	require.NoError(t, err)

	assert.Equal(t, "notes", loaded.Title)
	assert.Equal(t, "line one with tabs\n\nsecond paragraph", loaded.Text)
}

func TestSplitChunks_ShortTextIsOneChunk(t *testing.T) {
	chunks := SplitChunks("short text", 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len("short text"), chunks[0].End)
}

func TestSplitChunks_OffsetsMapBack(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "This is sentence number %d in the document. ", i)
	}
	text := b.String()

	chunks := SplitChunks(text, 1000, 100)
	require.Greater(t, len(chunks), 1)

	covered := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 1000)
		assert.Equal(t, text[c.Start:c.End], c.Text, "chunk text matches its claimed span")
		if c.End > covered {
			covered = c.End
		}
	}
	assert.Equal(t, len(text), covered, "chunks cover the whole document")
}

func TestSplitChunks_PrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("word ", 100) // 500 bytes
	text := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	chunks := SplitChunks(text, 600, 0)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"), "first chunk ends at the paragraph break")
}

func TestToContent(t *testing.T) {
	loaded := &Loaded{Title: "Notes", Text: "a small document"}
	content := loaded.ToContent("/docs/notes.txt", graph.ScopeUser, "u1")

	assert.Equal(t, "a small document", content.Text)
	assert.Nil(t, content.Chunks, "content under one chunk stays unchunked")
	assert.Equal(t, "Notes", content.Source.Title)
	assert.Equal(t, "/docs/notes.txt", content.Source.SourcePath)
	assert.True(t, content.Source.IsDocument())
	assert.Equal(t, graph.ScopeUser, content.Scope)
	assert.Equal(t, "u1", content.OwnerID)

	big := &Loaded{Title: "Big", Text: strings.Repeat("sentence goes here. ", 500)}
	content = big.ToContent("/docs/big.txt", graph.ScopeUser, "u1")
	assert.Greater(t, len(content.Chunks), 1)
}
