package graph

import (
	"regexp"
	"strings"
)

// ============================================================================
// Fact Similarity
// ============================================================================

// stopwords are excluded before comparing fact token sets. Function words
// inflate overlap between unrelated facts.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"had": true, "has": true, "have": true, "he": true, "her": true,
	"his": true, "i": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "she": true, "that": true,
	"the": true, "their": true, "they": true, "this": true, "to": true,
	"was": true, "were": true, "will": true, "with": true, "you": true,
}

var nonWordPattern = regexp.MustCompile(`[^a-z0-9']+`)

// factTokens normalizes a fact into its set of non-stopword tokens
func factTokens(fact string) map[string]bool {
	fact = strings.ToLower(strings.TrimSpace(fact))
	tokens := make(map[string]bool)
	for _, word := range nonWordPattern.Split(fact, -1) {
		word = strings.Trim(word, "'")
		if word == "" || stopwords[word] {
			continue
		}
		tokens[word] = true
	}
	return tokens
}

// jaccardSimilarity is |A ∩ B| / |A ∪ B| over two token sets
func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// factsSimilar reports whether two facts share enough non-stopword tokens to
// be considered the same fact phrased differently. The threshold is a
// heuristic; it does not catch all semantic duplicates.
func factsSimilar(fact1, fact2 string, threshold float64) bool {
	if fact1 == "" || fact2 == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(fact1), strings.TrimSpace(fact2)) {
		return true
	}
	return jaccardSimilarity(factTokens(fact1), factTokens(fact2)) > threshold
}
