package graph

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncatePreview_ShortContentUntouched(t *testing.T) {
	assert.Equal(t, "a short note", truncatePreview("a short note"))
}

func TestTruncatePreview_TrimsToLimit(t *testing.T) {
	long := strings.Repeat("a", episodePreviewLength+100)
	got := truncatePreview(long)
	assert.Len(t, got, episodePreviewLength)
}

func TestTruncatePreview_NeverSplitsRunes(t *testing.T) {
	// Place a multi-byte rune straddling the cut point
	long := strings.Repeat("a", episodePreviewLength-1) + "héllo wörld"
	got := truncatePreview(long)

	assert.True(t, utf8.ValidString(got), "preview must stay valid UTF-8")
	assert.LessOrEqual(t, len(got), episodePreviewLength)

	// One leading byte shifts every two-byte rune so the cut lands on a
	// continuation byte
	misaligned := "a" + strings.Repeat("é", episodePreviewLength)
	got = truncatePreview(misaligned)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, episodePreviewLength-1, len(got), "cut backs off to the rune boundary")
}
