package extraction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scopegraph/backend/internal/graph"
	"scopegraph/backend/internal/traits"
)

// fakeStore is an in-memory GraphStore recording every call
type fakeStore struct {
	mu            sync.Mutex
	entities      map[string]fakeEntity // id -> entity
	relationships []fakeRelationship
	episodes      []string
	nextID        int
}

type fakeEntity struct {
	id         string
	name       string
	entityType graph.EntityType
	scope      graph.Scope
	ownerID    string
	props      map[string]interface{}
}

type fakeRelationship struct {
	sourceID, targetID string
	relType            graph.RelationshipType
	fact               string
	scope              graph.Scope
}

func newFakeStore() *fakeStore {
	return &fakeStore{entities: map[string]fakeEntity{}}
}

func (s *fakeStore) CreateEntity(ctx context.Context, entityType graph.EntityType, properties map[string]interface{}, scope graph.Scope, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("e%d", s.nextID)
	name, _ := properties["name"].(string)
	if name == "" {
		name, _ = properties["title"].(string)
	}
	s.entities[id] = fakeEntity{id: id, name: name, entityType: entityType, scope: scope, ownerID: ownerID, props: properties}
	return id, nil
}

func (s *fakeStore) FindEntity(ctx context.Context, name string, entityType graph.EntityType, scope graph.Scope, ownerID string) (*graph.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.name == name && e.entityType == entityType && e.scope == scope && e.ownerID == ownerID {
			return &graph.Entity{ID: e.id, Type: e.entityType, Name: e.name, Scope: e.scope, OwnerID: e.ownerID}, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateRelationship(ctx context.Context, sourceID, targetID string, relType graph.RelationshipType, properties map[string]interface{}, scope graph.Scope, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fact, _ := properties["fact"].(string)
	s.relationships = append(s.relationships, fakeRelationship{sourceID: sourceID, targetID: targetID, relType: relType, fact: fact, scope: scope})
	return fmt.Sprintf("r%d", len(s.relationships)), nil
}

func (s *fakeStore) RelationshipExists(ctx context.Context, sourceID, targetID string, relType graph.RelationshipType, scope graph.Scope, fact string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.relationships {
		if r.sourceID == sourceID && r.targetID == targetID && r.relType == relType && r.scope == scope {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) CreateEpisode(ctx context.Context, content, source, sourcePath, title string, scope graph.Scope, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes = append(s.episodes, title)
	return fmt.Sprintf("ep%d", len(s.episodes)), nil
}

func (s *fakeStore) entityNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, e := range s.entities {
		names = append(names, e.name)
	}
	return names
}

// scriptedExtractor returns a fixed result per chunk text
type scriptedExtractor struct {
	results map[string]*ExtractionResult
	err     error
	errOn   string
}

func (e *scriptedExtractor) Process(ctx context.Context, text string) (*ExtractionResult, error) {
	if e.errOn != "" && strings.Contains(text, e.errOn) {
		return nil, fmt.Errorf("extractor blew up")
	}
	if e.err != nil {
		return nil, e.err
	}
	if res, ok := e.results[text]; ok {
		return res, nil
	}
	return &ExtractionResult{}, nil
}

type scriptedTraitExtractor struct {
	traitsByText map[string][]traits.Trait
}

func (e *scriptedTraitExtractor) Extract(ctx context.Context, content string, source SourceMetadata) ([]traits.Trait, error) {
	return e.traitsByText[content], nil
}

type recordingMerger struct {
	mu      sync.Mutex
	batches [][]traits.Trait
	userIDs []string
}

func (m *recordingMerger) Merge(ctx context.Context, userID string, batch []traits.Trait) (*traits.MergeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batch)
	m.userIDs = append(m.userIDs, userID)
	return &traits.MergeStats{}, nil
}

func docContent(text string, chunks ...Chunk) Content {
	return Content{
		Text:    text,
		Chunks:  chunks,
		Source:  SourceMetadata{Kind: SourceKindDocument, Title: "notes.html", SourcePath: "/tmp/notes.html"},
		Scope:   graph.ScopeUser,
		OwnerID: "u1",
	}
}

func TestPipeline_ConfidenceFiltering(t *testing.T) {
	store := newFakeStore()
	extractor := &scriptedExtractor{results: map[string]*ExtractionResult{
		"hello": {
			Entities: []ExtractedEntity{
				{Text: "Alice", EntityType: "person", Confidence: 0.9},
				{Text: "Ghost", EntityType: "person", Confidence: 0.5}, // below 0.65
			},
			Relationships: []ExtractedRelationship{
				{Source: "Alice", Target: "Ghost", Relationship: "MENTIONED_WITH", Confidence: 0.9},
			},
		},
	}}

	p := NewPipeline(store, extractor, nil, nil, DefaultConfig())
	result, err := p.ExtractFromContent(context.Background(), docContent("hello"))
	require.NoError(t, err)

	assert.NotContains(t, store.entityNames(), "Ghost")
	assert.Contains(t, store.entityNames(), "Alice")
	// The relationship's endpoint was filtered, so it is skipped, not created
	assert.Equal(t, 0, result.RelationshipsCreated)
	assert.Equal(t, 1, result.RelationshipsSkipped)
}

func TestPipeline_VolumeLimiting(t *testing.T) {
	var entities []ExtractedEntity
	for i := 0; i < 30; i++ {
		entities = append(entities, ExtractedEntity{
			Text:       fmt.Sprintf("entity-%02d", i),
			EntityType: "person",
			Confidence: 0.65 + float64(i)*0.01,
		})
	}
	store := newFakeStore()
	extractor := &scriptedExtractor{results: map[string]*ExtractionResult{
		"crowded": {Entities: entities},
	}}

	p := NewPipeline(store, extractor, nil, nil, DefaultConfig())
	result, err := p.ExtractFromContent(context.Background(), docContent("crowded"))
	require.NoError(t, err)

	assert.Equal(t, 20, result.EntitiesCreated)
	// The 20 kept are exactly the highest-confidence ones (entities 10..29)
	names := store.entityNames()
	assert.NotContains(t, names, "entity-00")
	assert.NotContains(t, names, "entity-09")
	assert.Contains(t, names, "entity-10")
	assert.Contains(t, names, "entity-29")
}

func TestPipeline_RelationshipLimit(t *testing.T) {
	var rels []ExtractedRelationship
	res := &ExtractionResult{
		Entities: []ExtractedEntity{
			{Text: "A", EntityType: "person", Confidence: 0.9},
			{Text: "B", EntityType: "person", Confidence: 0.9},
		},
	}
	for i := 0; i < 50; i++ {
		rels = append(rels, ExtractedRelationship{
			Source: "A", Target: "B", Relationship: "MENTIONED_WITH",
			Confidence: 0.9, SentenceIndex: i,
			Context: fmt.Sprintf("distinct fact number %d", i),
		})
	}
	res.Relationships = rels

	store := newFakeStore()
	extractor := &scriptedExtractor{results: map[string]*ExtractionResult{"dense": res}}
	p := NewPipeline(store, extractor, nil, nil, DefaultConfig())

	result, err := p.ExtractFromContent(context.Background(), docContent("dense"))
	require.NoError(t, err)

	// 40 survive the cap; the fake store then treats every later (A,B) pair
	// as existing, so exactly one edge lands.
	assert.Equal(t, 1, result.RelationshipsCreated)
	assert.Equal(t, 39, result.RelationshipsSkipped)
}

func TestPipeline_EntityReuse(t *testing.T) {
	store := newFakeStore()
	extractor := &scriptedExtractor{results: map[string]*ExtractionResult{
		"first":  {Entities: []ExtractedEntity{{Text: "Acme", EntityType: "organization", Confidence: 0.9}}},
		"second": {Entities: []ExtractedEntity{{Text: "Acme", EntityType: "organization", Confidence: 0.8}}},
	}}
	p := NewPipeline(store, extractor, nil, nil, DefaultConfig())
	ctx := context.Background()

	r1, err := p.ExtractFromContent(ctx, docContent("first"))
	require.NoError(t, err)
	assert.Equal(t, 1, r1.EntitiesCreated)

	r2, err := p.ExtractFromContent(ctx, docContent("second"))
	require.NoError(t, err)
	assert.Equal(t, 0, r2.EntitiesCreated)
	assert.Equal(t, 1, r2.EntitiesReused)
	assert.Len(t, store.entities, 1)
}

func TestPipeline_EpisodeOnlyForDocuments(t *testing.T) {
	store := newFakeStore()
	extractor := &scriptedExtractor{}
	p := NewPipeline(store, extractor, nil, nil, DefaultConfig())
	ctx := context.Background()

	_, err := p.ExtractFromContent(ctx, docContent("a document"))
	require.NoError(t, err)
	assert.Len(t, store.episodes, 1)

	chat := Content{
		Text:    "a chat message",
		Source:  SourceMetadata{Kind: SourceKindChatMessage, MessageID: "m1", ConversationTitle: "general"},
		Scope:   graph.ScopeUser,
		OwnerID: "u1",
	}
	_, err = p.ExtractFromContent(ctx, chat)
	require.NoError(t, err)
	assert.Len(t, store.episodes, 1, "chat messages get no episode")
}

func TestPipeline_ChunkOffsetsRemapped(t *testing.T) {
	store := newFakeStore()
	extractor := &scriptedExtractor{results: map[string]*ExtractionResult{
		"part one": {Entities: []ExtractedEntity{{Text: "one", EntityType: "skill", Start: 5, End: 8, Confidence: 0.9}}},
		"part two": {Entities: []ExtractedEntity{{Text: "two", EntityType: "skill", Start: 5, End: 8, Confidence: 0.9}}},
	}}

	var captured []ExtractedEntity
	cfg := DefaultConfig()
	p := NewPipeline(store, extractor, nil, nil, cfg)

	content := docContent("part one part two",
		Chunk{Text: "part one", Start: 0, End: 8},
		Chunk{Text: "part two", Start: 9, End: 17},
	)
	outputs := p.extractChunks(context.Background(), content.Chunks, content)
	for _, out := range outputs {
		captured = append(captured, out.entities...)
	}

	require.Len(t, captured, 2)
	offsets := map[string]int{}
	for _, e := range captured {
		offsets[e.Text] = e.Start
	}
	assert.Equal(t, 5, offsets["one"])
	assert.Equal(t, 14, offsets["two"], "second chunk's span shifted by chunk start")
}

func TestPipeline_ChunkFailureIsIsolated(t *testing.T) {
	store := newFakeStore()
	extractor := &scriptedExtractor{
		errOn: "poison",
		results: map[string]*ExtractionResult{
			"good": {Entities: []ExtractedEntity{{Text: "Kept", EntityType: "person", Confidence: 0.9}}},
		},
	}
	p := NewPipeline(store, extractor, nil, nil, DefaultConfig())

	content := docContent("good poison",
		Chunk{Text: "good", Start: 0, End: 4},
		Chunk{Text: "poison", Start: 5, End: 11},
	)
	result, err := p.ExtractFromContent(context.Background(), content)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, 1, result.ChunksProcessed)
	assert.Equal(t, 1, result.ChunksFailed)
	assert.Contains(t, store.entityNames(), "Kept")
}

func TestPipeline_AllChunksFailed(t *testing.T) {
	store := newFakeStore()
	extractor := &scriptedExtractor{err: fmt.Errorf("extractor down")}
	p := NewPipeline(store, extractor, nil, nil, DefaultConfig())

	result, err := p.ExtractFromContent(context.Background(), docContent("anything"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Empty(t, store.entityNames())
}

func TestPipeline_TraitDedupAcrossChunks(t *testing.T) {
	store := newFakeStore()
	extractor := &scriptedExtractor{}
	traitExtractor := &scriptedTraitExtractor{traitsByText: map[string][]traits.Trait{
		"chunk a": {{Type: traits.TraitInterest, Name: "Hiking", Confidence: 0.82, Source: traits.SourceDocument}},
		"chunk b": {{Type: traits.TraitInterest, Name: "hiking", Confidence: 0.93, Source: traits.SourceDocument}},
	}}
	merger := &recordingMerger{}
	p := NewPipeline(store, extractor, traitExtractor, merger, DefaultConfig())

	content := docContent("chunk a chunk b",
		Chunk{Text: "chunk a", Start: 0, End: 7},
		Chunk{Text: "chunk b", Start: 8, End: 15},
	)
	_, err := p.ExtractFromContent(context.Background(), content)
	require.NoError(t, err)

	require.Len(t, merger.batches, 1)
	require.Len(t, merger.batches[0], 1, "duplicate trait collapsed")
	assert.InDelta(t, 0.93, merger.batches[0][0].Confidence, 1e-9, "highest confidence kept")
	assert.Equal(t, []string{"u1"}, merger.userIDs)
}

func TestPipeline_TogglesAreIndependent(t *testing.T) {
	extractor := &scriptedExtractor{results: map[string]*ExtractionResult{
		"text": {Entities: []ExtractedEntity{{Text: "Alice", EntityType: "person", Confidence: 0.9}}},
	}}
	traitExtractor := &scriptedTraitExtractor{traitsByText: map[string][]traits.Trait{
		"text": {{Type: traits.TraitSkill, Name: "Go", Confidence: 0.9, Source: traits.SourceDocument}},
	}}

	// Graph off, traits on
	store := newFakeStore()
	merger := &recordingMerger{}
	cfg := DefaultConfig()
	cfg.MaterializeGraph = false
	p := NewPipeline(store, extractor, traitExtractor, merger, cfg)
	_, err := p.ExtractFromContent(context.Background(), docContent("text"))
	require.NoError(t, err)
	assert.Empty(t, store.entityNames())
	assert.Empty(t, store.episodes)
	assert.Len(t, merger.batches, 1)

	// Graph on, traits off
	store = newFakeStore()
	merger = &recordingMerger{}
	cfg = DefaultConfig()
	cfg.MergeTraits = false
	p = NewPipeline(store, extractor, traitExtractor, merger, cfg)
	_, err = p.ExtractFromContent(context.Background(), docContent("text"))
	require.NoError(t, err)
	assert.Contains(t, store.entityNames(), "Alice")
	assert.Empty(t, merger.batches)
}

// cancelingStore fires its cancel func on the first entity write and fails
// any call whose context has been cancelled
type cancelingStore struct {
	*fakeStore
	cancel context.CancelFunc
	once   sync.Once
}

func (s *cancelingStore) CreateEntity(ctx context.Context, entityType graph.EntityType, properties map[string]interface{}, scope graph.Scope, ownerID string) (string, error) {
	s.once.Do(s.cancel)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.fakeStore.CreateEntity(ctx, entityType, properties, scope, ownerID)
}

func (s *cancelingStore) FindEntity(ctx context.Context, name string, entityType graph.EntityType, scope graph.Scope, ownerID string) (*graph.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fakeStore.FindEntity(ctx, name, entityType, scope, ownerID)
}

func (s *cancelingStore) CreateRelationship(ctx context.Context, sourceID, targetID string, relType graph.RelationshipType, properties map[string]interface{}, scope graph.Scope, ownerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.fakeStore.CreateRelationship(ctx, sourceID, targetID, relType, properties, scope, ownerID)
}

func (s *cancelingStore) RelationshipExists(ctx context.Context, sourceID, targetID string, relType graph.RelationshipType, scope graph.Scope, fact string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.fakeStore.RelationshipExists(ctx, sourceID, targetID, relType, scope, fact)
}

func TestPipeline_MaterializationRunsToCompletionAfterCancel(t *testing.T) {
	inner := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancelingStore{fakeStore: inner, cancel: cancel}

	extractor := &scriptedExtractor{results: map[string]*ExtractionResult{
		"text": {
			Entities: []ExtractedEntity{
				{Text: "Alice", EntityType: "person", Confidence: 0.9},
				{Text: "Acme", EntityType: "organization", Confidence: 0.9},
			},
			Relationships: []ExtractedRelationship{
				{Source: "Alice", Target: "Acme", Relationship: "WORKS_AT", Confidence: 0.9, Context: "Alice works at Acme"},
			},
		},
	}}

	p := NewPipeline(store, extractor, nil, nil, DefaultConfig())
	result, err := p.ExtractFromContent(ctx, docContent("text"))
	require.NoError(t, err)

	// The cancel landed during the first entity write; the remaining entity
	// and the relationship must still be written.
	assert.Equal(t, 2, result.EntitiesCreated)
	assert.Equal(t, 0, result.EntitiesFailed)
	assert.Equal(t, 1, result.RelationshipsCreated)
	assert.Equal(t, 0, result.RelationshipsFailed)
	assert.Equal(t, StatusSuccess, result.Status)
}

func TestPipeline_CancelledBeforeMaterialization(t *testing.T) {
	store := newFakeStore()
	extractor := &scriptedExtractor{results: map[string]*ExtractionResult{
		"text": {Entities: []ExtractedEntity{{Text: "Alice", EntityType: "person", Confidence: 0.9}}},
	}}
	cfg := DefaultConfig()
	cfg.MaterializeGraph = false // skip the episode write so cancellation hits the gate
	p := NewPipeline(store, extractor, nil, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.ExtractFromContent(ctx, docContent("text"))
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Empty(t, store.entityNames())
}
