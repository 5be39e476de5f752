package extraction

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scopegraph/backend/internal/graph"
	"scopegraph/backend/internal/traits"
	"scopegraph/backend/pkg/logger"
)

// ============================================================================
// Extraction Pipeline
// ============================================================================

// Config fixes a pipeline instance's thresholds, limits, and capabilities.
// The two feature toggles are independent: a deployment may want profile
// updates without growing the graph, or the other way around.
type Config struct {
	MinEntityConfidence       float64
	MinRelationshipConfidence float64
	MinTraitConfidence        float64
	MaxEntitiesPerChunk       int
	MaxRelationshipsTotal     int
	ChunkWorkers              int

	MaterializeGraph bool
	MergeTraits      bool
}

// DefaultConfig returns the standard thresholds and limits
func DefaultConfig() Config {
	return Config{
		MinEntityConfidence:       0.65,
		MinRelationshipConfidence: 0.6,
		MinTraitConfidence:        0.8,
		MaxEntitiesPerChunk:       20,
		MaxRelationshipsTotal:     40,
		ChunkWorkers:              4,
		MaterializeGraph:          true,
		MergeTraits:               true,
	}
}

// Pipeline turns raw content into deduplicated graph entities/relationships
// and profile trait updates
type Pipeline struct {
	store          GraphStore
	extractor      EntityExtractor
	traitExtractor TraitExtractor
	merger         TraitMerger
	cfg            Config
	logger         *zap.Logger
}

// NewPipeline wires a pipeline from its collaborators. store may be nil when
// MaterializeGraph is off, merger/traitExtractor when MergeTraits is off.
func NewPipeline(store GraphStore, extractor EntityExtractor, traitExtractor TraitExtractor, merger TraitMerger, cfg Config) *Pipeline {
	if cfg.ChunkWorkers < 1 {
		cfg.ChunkWorkers = 1
	}
	return &Pipeline{
		store:          store,
		extractor:      extractor,
		traitExtractor: traitExtractor,
		merger:         merger,
		cfg:            cfg,
		logger:         logger.Named("extraction"),
	}
}

// chunkOutput is one chunk's surviving candidates, offsets already remapped
// into document coordinates
type chunkOutput struct {
	entities      []ExtractedEntity
	relationships []docRelationship
	traits        []traits.Trait
	failed        bool
}

// docRelationship orders a relationship by (chunk, sentence) for trimming
type docRelationship struct {
	ExtractedRelationship
	chunkIndex int
}

// ExtractFromContent runs the full pipeline for one unit of content. Chunk
// failures are isolated and counted, as are per-item materialization
// failures; the aggregate status reflects whether anything failed.
func (p *Pipeline) ExtractFromContent(ctx context.Context, content Content) (*Result, error) {
	result := &Result{Status: StatusSuccess}

	chunks := content.Chunks
	if len(chunks) == 0 {
		chunks = []Chunk{{Text: content.Text, Start: 0, End: len(content.Text)}}
	}

	// Documents get a provenance node up front, before extraction, so
	// whatever gets extracted can be traced back to its source.
	if p.cfg.MaterializeGraph && content.Source.IsDocument() {
		episodeID, err := p.store.CreateEpisode(ctx, content.Text, content.Source.Kind,
			content.Source.SourcePath, content.Source.Title, content.Scope, content.OwnerID)
		if err != nil {
			p.logger.Warn("episode creation failed", zap.Error(err))
		} else {
			result.EpisodeID = episodeID
			if content.Source.SourceID == "" {
				content.Source.SourceID = episodeID
			}
		}
	}

	outputs := p.extractChunks(ctx, chunks, content)

	// Single-writer merge of the per-chunk outputs
	var allEntities []ExtractedEntity
	var allRelationships []docRelationship
	var allTraits []traits.Trait
	for _, out := range outputs {
		if out.failed {
			result.ChunksFailed++
			continue
		}
		result.ChunksProcessed++
		allEntities = append(allEntities, out.entities...)
		allRelationships = append(allRelationships, out.relationships...)
		allTraits = append(allTraits, out.traits...)
	}

	if result.ChunksProcessed == 0 && result.ChunksFailed > 0 {
		result.Status = StatusFailed
		return result, nil
	}

	allRelationships = limitRelationships(allRelationships, p.cfg.MaxRelationshipsTotal)
	allTraits = dedupeTraits(allTraits)

	// A cancelled caller stops here. Past this gate the write phase runs on
	// a detached context: aborting mid-batch would leave entities without
	// their relationships.
	if err := ctx.Err(); err != nil {
		result.Status = StatusFailed
		return result, err
	}
	writeCtx := context.WithoutCancel(ctx)

	if p.cfg.MaterializeGraph {
		p.materialize(writeCtx, content, allEntities, allRelationships, result)
	}

	if p.cfg.MergeTraits && p.merger != nil && len(allTraits) > 0 && content.OwnerID != "" {
		stats, err := p.merger.Merge(writeCtx, content.OwnerID, allTraits)
		if err != nil {
			p.logger.Error("trait merge failed",
				zap.String("owner_id", content.OwnerID),
				zap.Error(err),
			)
			result.TraitMergeFailed = true
		} else {
			result.TraitStats = stats
		}
	}

	if result.ChunksFailed > 0 || result.EntitiesFailed > 0 || result.RelationshipsFailed > 0 || result.TraitMergeFailed {
		result.Status = StatusPartial
	}

	p.logger.Info("content processed",
		zap.String("kind", content.Source.Kind),
		zap.String("status", string(result.Status)),
		zap.Int("chunks", result.ChunksProcessed),
		zap.Int("entities_created", result.EntitiesCreated),
		zap.Int("relationships_created", result.RelationshipsCreated),
	)
	return result, nil
}

// extractChunks runs the raw extractors over every chunk under a bounded
// worker pool. Chunks are independent; each worker writes only its own slot.
func (p *Pipeline) extractChunks(ctx context.Context, chunks []Chunk, content Content) []chunkOutput {
	outputs := make([]chunkOutput, len(chunks))

	var g errgroup.Group
	g.SetLimit(p.cfg.ChunkWorkers)
	var mu sync.Mutex // guards nothing but keeps the log lines whole

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			out := p.extractOneChunk(ctx, i, chunk, content)
			outputs[i] = out
			if out.failed {
				mu.Lock()
				p.logger.Warn("chunk extraction failed, continuing",
					zap.Int("chunk", i),
					zap.String("kind", content.Source.Kind),
				)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return outputs
}

func (p *Pipeline) extractOneChunk(ctx context.Context, index int, chunk Chunk, content Content) chunkOutput {
	var out chunkOutput

	raw, err := p.extractor.Process(ctx, chunk.Text)
	if err != nil {
		out.failed = true
		return out
	}

	// Filter by confidence, remap spans into document coordinates
	for _, entity := range raw.Entities {
		if entity.Confidence < p.cfg.MinEntityConfidence {
			continue
		}
		entity.Start += chunk.Start
		entity.End += chunk.Start
		out.entities = append(out.entities, entity)
	}
	out.entities = limitEntities(out.entities, p.cfg.MaxEntitiesPerChunk)

	for _, rel := range raw.Relationships {
		if rel.Confidence < p.cfg.MinRelationshipConfidence {
			continue
		}
		out.relationships = append(out.relationships, docRelationship{
			ExtractedRelationship: rel,
			chunkIndex:            index,
		})
	}

	if p.cfg.MergeTraits && p.traitExtractor != nil {
		extracted, err := p.traitExtractor.Extract(ctx, chunk.Text, content.Source)
		if err != nil {
			// Trait extraction failing does not fail the chunk; the graph
			// side of the chunk already succeeded.
			p.logger.Warn("trait extraction failed for chunk",
				zap.Int("chunk", index),
				zap.Error(err),
			)
		} else {
			for _, trait := range extracted {
				if trait.Confidence < p.cfg.MinTraitConfidence {
					continue
				}
				out.traits = append(out.traits, trait)
			}
		}
	}

	return out
}

// limitEntities keeps the top n entities ordered by confidence, longer text
// winning ties
func limitEntities(entities []ExtractedEntity, n int) []ExtractedEntity {
	if len(entities) <= n {
		return entities
	}
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Confidence != entities[j].Confidence {
			return entities[i].Confidence > entities[j].Confidence
		}
		return len(entities[i].Text) > len(entities[j].Text)
	})
	return entities[:n]
}

// limitRelationships trims to n, keeping earlier sentences first
func limitRelationships(rels []docRelationship, n int) []docRelationship {
	if len(rels) <= n {
		return rels
	}
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].chunkIndex != rels[j].chunkIndex {
			return rels[i].chunkIndex < rels[j].chunkIndex
		}
		return rels[i].SentenceIndex < rels[j].SentenceIndex
	})
	return rels[:n]
}

// dedupeTraits collapses traits across chunks by (type, normalized name),
// keeping the highest-confidence instance
func dedupeTraits(all []traits.Trait) []traits.Trait {
	best := make(map[string]traits.Trait, len(all))
	var order []string
	for _, trait := range all {
		key := string(trait.Type) + "|" + traits.NormalizeName(trait.Name)
		existing, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = trait
			continue
		}
		if trait.Confidence > existing.Confidence {
			best[key] = trait
		}
	}
	deduped := make([]traits.Trait, 0, len(order))
	for _, key := range order {
		deduped = append(deduped, best[key])
	}
	return deduped
}

// materialize writes surviving entities and relationships to the graph.
// Every item is isolated: one failure never aborts the rest of the batch.
func (p *Pipeline) materialize(ctx context.Context, content Content, entities []ExtractedEntity, rels []docRelationship, result *Result) {
	entityIDs := make(map[string]string, len(entities))

	for _, entity := range entities {
		entityType := mapEntityType(entity.EntityType)
		if entityType == "" {
			result.EntitiesFailed++
			continue
		}
		key := entityKey(entity.Text, entityType)
		if _, done := entityIDs[key]; done {
			continue
		}

		existing, err := p.store.FindEntity(ctx, entity.Text, entityType, content.Scope, content.OwnerID)
		if err != nil {
			result.EntitiesFailed++
			continue
		}
		if existing != nil {
			entityIDs[key] = existing.ID
			result.EntitiesReused++
			continue
		}

		id, err := p.store.CreateEntity(ctx, entityType, p.entityProperties(entity, entityType, content), content.Scope, content.OwnerID)
		if err != nil {
			result.EntitiesFailed++
			continue
		}
		entityIDs[key] = id
		result.EntitiesCreated++
	}

	for _, rel := range rels {
		relType := mapRelationshipType(rel.Relationship)
		if relType == "" {
			result.RelationshipsSkipped++
			continue
		}

		sourceID, targetID := lookupEndpoint(entityIDs, rel.Source), lookupEndpoint(entityIDs, rel.Target)
		if sourceID == "" || targetID == "" {
			// An endpoint was never materialized (filtered, failed, or capped)
			result.RelationshipsSkipped++
			continue
		}

		exists, err := p.store.RelationshipExists(ctx, sourceID, targetID, relType, content.Scope, rel.Context)
		if err != nil {
			result.RelationshipsFailed++
			continue
		}
		if exists {
			result.RelationshipsSkipped++
			continue
		}

		if _, err := p.store.CreateRelationship(ctx, sourceID, targetID, relType, map[string]interface{}{
			"fact":       rel.Context,
			"confidence": rel.Confidence,
		}, content.Scope, content.OwnerID); err != nil {
			result.RelationshipsFailed++
			continue
		}
		result.RelationshipsCreated++
	}
}

// entityProperties builds the property bag for a new entity, stamping the
// provenance fields its source kind carries
func (p *Pipeline) entityProperties(entity ExtractedEntity, entityType graph.EntityType, content Content) map[string]interface{} {
	props := map[string]interface{}{}
	if entityType == graph.EntityDocument {
		props["title"] = entity.Text
	} else {
		props["name"] = entity.Text
	}
	if entity.Context != "" {
		props["summary"] = entity.Context
	}
	if content.Source.IsDocument() {
		if content.Source.SourceID != "" {
			props["source_id"] = content.Source.SourceID
		}
		if content.Source.Title != "" {
			props["context_title"] = content.Source.Title
		}
	} else {
		if content.Source.MessageID != "" {
			props["message_id"] = content.Source.MessageID
		}
		if content.Source.ConversationTitle != "" {
			props["conversation_title"] = content.Source.ConversationTitle
		}
	}
	return props
}

func entityKey(text string, entityType graph.EntityType) string {
	return strings.ToLower(strings.TrimSpace(text)) + "|" + string(entityType)
}

// lookupEndpoint resolves a relationship endpoint by text against the
// materialized entity map, whatever type it landed as
func lookupEndpoint(entityIDs map[string]string, text string) string {
	prefix := strings.ToLower(strings.TrimSpace(text)) + "|"
	for key, id := range entityIDs {
		if strings.HasPrefix(key, prefix) {
			return id
		}
	}
	return ""
}

// mapEntityType converts an extractor label into the store taxonomy.
// Unknown labels are discarded rather than guessed.
func mapEntityType(raw string) graph.EntityType {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "person", "people":
		return graph.EntityPerson
	case "organization", "org", "company":
		return graph.EntityOrganization
	case "location", "place", "gpe":
		return graph.EntityLocation
	case "document":
		return graph.EntityDocument
	case "event":
		return graph.EntityEvent
	case "skill":
		return graph.EntitySkill
	case "interest":
		return graph.EntityInterest
	case "preference":
		return graph.EntityPreference
	case "dislike":
		return graph.EntityDislike
	case "attribute":
		return graph.EntityAttribute
	case "timeslot", "time_slot":
		return graph.EntityTimeSlot
	}
	return ""
}

// mapRelationshipType converts an extractor label into the closed edge
// vocabulary; anything unrecognized maps to the generic association
func mapRelationshipType(raw string) graph.RelationshipType {
	normalized := graph.RelationshipType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")))
	if normalized.IsValid() {
		return normalized
	}
	switch normalized {
	case "LIKES", "ENJOYS":
		return graph.RelInterestedIn
	case "HATES", "AVOIDS":
		return graph.RelDislikes
	case "EMPLOYED_BY":
		return graph.RelWorksAt
	case "":
		return ""
	}
	return graph.RelMentionedWith
}
