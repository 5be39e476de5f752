package document

import (
	"strings"

	"scopegraph/backend/internal/extraction"
)

// Default chunking parameters. Sized so one chunk plus the extraction prompt
// stays well inside a small model's context window.
const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 200
)

// SplitChunks splits text into chunks of at most maxSize bytes with the given
// overlap. Each chunk records its [Start, End) offsets into the original
// text, so extracted spans can be mapped back to document coordinates.
// Boundaries prefer paragraph breaks, then sentence ends, then spaces.
func SplitChunks(text string, maxSize, overlap int) []extraction.Chunk {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = 0
	}
	if len(text) <= maxSize {
		return []extraction.Chunk{{Text: text, Start: 0, End: len(text)}}
	}

	var chunks []extraction.Chunk
	start := 0
	for start < len(text) {
		end := start + maxSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = splitPoint(text, start, end)
		}

		chunks = append(chunks, extraction.Chunk{
			Text:  text[start:end],
			Start: start,
			End:   end,
		})

		if end == len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// splitPoint picks the best boundary in (start, limit], preferring a
// paragraph break, then a sentence end, then a space
func splitPoint(text string, start, limit int) int {
	window := text[start:limit]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return start + idx + 2
	}
	if idx := lastSentenceEnd(window); idx > 0 {
		return start + idx
	}
	if idx := strings.LastIndexByte(window, ' '); idx > 0 {
		return start + idx + 1
	}
	return limit
}

// lastSentenceEnd returns the offset just past the last ". ", "! ", or "? "
// in s, or -1
func lastSentenceEnd(s string) int {
	best := -1
	for _, terminator := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(s, terminator); idx >= 0 && idx+2 > best {
			best = idx + 2
		}
	}
	return best
}
