package adapter

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"scopegraph/backend/internal/extraction"
	"scopegraph/backend/internal/traits"
	"scopegraph/backend/pkg/errors"
	"scopegraph/backend/pkg/logger"
)

const entityExtractionPrompt = `You are an information extraction engine. Extract entities and relationships from the user's text.

Respond with a single JSON object:
{
  "entities": [
    {"text": "...", "entity_type": "person|organization|location|document|event|skill|interest|preference|dislike|attribute|timeslot", "start": 0, "end": 0, "confidence": 0.0, "context": "one-sentence summary"}
  ],
  "relationships": [
    {"source": "...", "target": "...", "relationship": "HAS_SKILL|INTERESTED_IN|PREFERS|DISLIKES|HAS_ATTRIBUTE|MENTIONED_WITH|WORKS_AT|LIVES_IN|PARTICIPATED_IN|AVAILABLE_AT|RELATED_TO", "confidence": 0.0, "context": "the fact as a sentence", "sentence_index": 0}
  ]
}

start/end are character offsets into the input. source and target must be the exact text of extracted entities. confidence is your calibrated 0-1 certainty. Extract nothing rather than guess.`

const traitExtractionPrompt = `You are a profile trait extraction engine. From the user's text, extract durable traits of the author or subject: skills, interests, preferences, dislikes, and personal attributes.

Respond with a single JSON object:
{
  "traits": [
    {"trait_type": "skill|interest|preference|dislike|attribute", "name": "...", "category": "...", "evidence": "...", "confidence": 0.0}
  ]
}

name identifies the trait, evidence quotes the supporting text, category groups preferences (e.g. "travel", "food"). confidence is your calibrated 0-1 certainty. Only extract traits the text actually supports; transient states are not traits.`

// EntityExtractor extracts entities and relationships from text using the
// LLM. Implements extraction.EntityExtractor.
type EntityExtractor struct {
	llm    *LLMAdapter
	logger *zap.Logger
}

// NewEntityExtractor creates an entity extractor on the given adapter
func NewEntityExtractor(llm *LLMAdapter) *EntityExtractor {
	return &EntityExtractor{
		llm:    llm,
		logger: logger.Named("extractor"),
	}
}

// Process extracts entity and relationship candidates from one piece of text
func (e *EntityExtractor) Process(ctx context.Context, text string) (*extraction.ExtractionResult, error) {
	raw, err := e.llm.CompleteJSON(ctx, entityExtractionPrompt, text)
	if err != nil {
		return nil, errors.NewExtraction("entity extraction request failed", err)
	}

	result, err := parseExtractionResult(raw)
	if err != nil {
		e.logger.Warn("Failed to parse extraction response",
			zap.Error(err),
			zap.Int("response_length", len(raw)),
		)
		return nil, err
	}
	return result, nil
}

func parseExtractionResult(raw string) (*extraction.ExtractionResult, error) {
	var result extraction.ExtractionResult
	if err := json.Unmarshal(sanitizeJSON(raw), &result); err != nil {
		return nil, errors.NewExtraction("entity extraction returned malformed JSON", err)
	}
	for i := range result.Entities {
		result.Entities[i].Confidence = clamp01(result.Entities[i].Confidence)
	}
	for i := range result.Relationships {
		result.Relationships[i].Confidence = clamp01(result.Relationships[i].Confidence)
	}
	return &result, nil
}

// TraitExtractor extracts profile traits from text using the LLM.
// Implements extraction.TraitExtractor.
type TraitExtractor struct {
	llm    *LLMAdapter
	logger *zap.Logger
}

// NewTraitExtractor creates a trait extractor on the given adapter
func NewTraitExtractor(llm *LLMAdapter) *TraitExtractor {
	return &TraitExtractor{
		llm:    llm,
		logger: logger.Named("trait_extractor"),
	}
}

// Extract extracts trait candidates from one piece of content. The returned
// traits carry the source kind so the merge engine can discount by origin.
func (e *TraitExtractor) Extract(ctx context.Context, content string, source extraction.SourceMetadata) ([]traits.Trait, error) {
	raw, err := e.llm.CompleteJSON(ctx, traitExtractionPrompt, content)
	if err != nil {
		return nil, errors.NewExtraction("trait extraction request failed", err)
	}

	parsed, err := parseTraits(raw, source.Kind)
	if err != nil {
		e.logger.Warn("Failed to parse trait response",
			zap.Error(err),
			zap.Int("response_length", len(raw)),
		)
		return nil, err
	}
	return parsed, nil
}

// parseTraits decodes the trait response, drops malformed entries, and stamps
// the source kind so the merge engine can discount by origin
func parseTraits(raw string, sourceKind string) ([]traits.Trait, error) {
	var parsed struct {
		Traits []traits.Trait `json:"traits"`
	}
	if err := json.Unmarshal(sanitizeJSON(raw), &parsed); err != nil {
		return nil, errors.NewExtraction("trait extraction returned malformed JSON", err)
	}

	out := make([]traits.Trait, 0, len(parsed.Traits))
	for _, trait := range parsed.Traits {
		if !trait.Type.IsValid() || trait.Name == "" {
			continue
		}
		trait.Source = sourceFromKind(sourceKind)
		trait.Confidence = clamp01(trait.Confidence)
		out = append(out, trait)
	}
	return out, nil
}

func sourceFromKind(kind string) string {
	if kind == extraction.SourceKindChatMessage {
		return traits.SourceChatMessage
	}
	return traits.SourceDocument
}

// sanitizeJSON strips markdown code fences and leading prose some models wrap
// around their JSON despite the response format
func sanitizeJSON(raw string) []byte {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return []byte(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
