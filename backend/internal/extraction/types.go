package extraction

import (
	"context"

	"scopegraph/backend/internal/graph"
	"scopegraph/backend/internal/traits"
)

// ============================================================================
// Extractor collaborators
// ============================================================================

// ExtractedEntity is one candidate entity span from the raw extractor.
// Start/End are offsets into the text handed to Process; the pipeline remaps
// them into document coordinates when the content was chunked.
type ExtractedEntity struct {
	Text       string  `json:"text"`
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
}

// ExtractedRelationship is one candidate relationship from the raw extractor.
// Source and Target name extracted entities by text; Context carries the
// natural-language fact.
type ExtractedRelationship struct {
	Source        string  `json:"source"`
	Target        string  `json:"target"`
	Relationship  string  `json:"relationship"`
	Confidence    float64 `json:"confidence"`
	Context       string  `json:"context,omitempty"`
	SentenceIndex int     `json:"sentence_index"`
}

// ExtractionResult is the raw extractor's output for one piece of text
type ExtractionResult struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// EntityExtractor is the injected entity/relationship extraction capability.
// The pipeline treats it as a black box.
type EntityExtractor interface {
	Process(ctx context.Context, text string) (*ExtractionResult, error)
}

// TraitExtractor is the injected trait extraction capability
type TraitExtractor interface {
	Extract(ctx context.Context, content string, source SourceMetadata) ([]traits.Trait, error)
}

// ============================================================================
// Content model
// ============================================================================

// Content source kinds
const (
	SourceKindChatMessage = "chat_message"
	SourceKindDocument    = "document"
)

// SourceMetadata describes where a piece of content came from. Documents
// carry a title/source path, chat messages a message id and conversation
// title; both feed entity provenance fields.
type SourceMetadata struct {
	Kind              string            `json:"kind"`
	Title             string            `json:"title,omitempty"`
	SourcePath        string            `json:"source_path,omitempty"`
	SourceID          string            `json:"source_id,omitempty"`
	MessageID         string            `json:"message_id,omitempty"`
	ConversationTitle string            `json:"conversation_title,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// IsDocument reports whether the content is a complete information unit.
// Only documents get an episode provenance node.
func (m SourceMetadata) IsDocument() bool {
	return m.Kind == SourceKindDocument
}

// Chunk is one pre-split piece of a document with its offsets in the
// original document's coordinate space
type Chunk struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Content is one unit of raw input to the pipeline: a chat message or a
// document, optionally pre-split into chunks.
type Content struct {
	Text    string         `json:"text"`
	Chunks  []Chunk        `json:"chunks,omitempty"`
	Source  SourceMetadata `json:"source"`
	Scope   graph.Scope    `json:"scope"`
	OwnerID string         `json:"owner_id,omitempty"`
}

// ============================================================================
// Pipeline results
// ============================================================================

// Status is the aggregate outcome of one pipeline run
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Result reports what one pipeline run produced
type Result struct {
	Status               Status             `json:"status"`
	EpisodeID            string             `json:"episode_id,omitempty"`
	ChunksProcessed      int                `json:"chunks_processed"`
	ChunksFailed         int                `json:"chunks_failed"`
	EntitiesCreated      int                `json:"entities_created"`
	EntitiesReused       int                `json:"entities_reused"`
	EntitiesFailed       int                `json:"entities_failed"`
	RelationshipsCreated int                `json:"relationships_created"`
	RelationshipsSkipped int                `json:"relationships_skipped"`
	RelationshipsFailed  int                `json:"relationships_failed"`
	TraitStats           *traits.MergeStats `json:"trait_stats,omitempty"`
	TraitMergeFailed     bool               `json:"trait_merge_failed,omitempty"`
}

// ============================================================================
// Store collaborators
// ============================================================================

// GraphStore is the slice of the graph repository the pipeline needs.
// *graph.Repository satisfies it.
type GraphStore interface {
	CreateEntity(ctx context.Context, entityType graph.EntityType, properties map[string]interface{}, scope graph.Scope, ownerID string) (string, error)
	FindEntity(ctx context.Context, name string, entityType graph.EntityType, scope graph.Scope, ownerID string) (*graph.Entity, error)
	CreateRelationship(ctx context.Context, sourceID, targetID string, relType graph.RelationshipType, properties map[string]interface{}, scope graph.Scope, ownerID string) (string, error)
	RelationshipExists(ctx context.Context, sourceID, targetID string, relType graph.RelationshipType, scope graph.Scope, fact string) (bool, error)
	CreateEpisode(ctx context.Context, content, source, sourcePath, title string, scope graph.Scope, ownerID string) (string, error)
}

// TraitMerger folds extracted traits into the profile record.
// *traits.MergeEngine satisfies it.
type TraitMerger interface {
	Merge(ctx context.Context, userID string, batch []traits.Trait) (*traits.MergeStats, error)
}
