package graph

import "time"

// ============================================================================
// Scope & Taxonomy
// ============================================================================

// Scope is the visibility partition of a node or edge
type Scope string

const (
	// ScopeUser marks content private to one owner
	ScopeUser Scope = "user"
	// ScopeTwin marks content private to an agent persona
	ScopeTwin Scope = "twin"
	// ScopeGlobal marks content visible to everyone; global content has no owner
	ScopeGlobal Scope = "global"
)

// IsValid reports whether s is one of the known scopes
func (s Scope) IsValid() bool {
	return s == ScopeUser || s == ScopeTwin || s == ScopeGlobal
}

// EntityType is a node label from the fixed taxonomy
type EntityType string

const (
	EntityPerson       EntityType = "Person"
	EntityOrganization EntityType = "Organization"
	EntityLocation     EntityType = "Location"
	EntityDocument     EntityType = "Document"
	EntityEvent        EntityType = "Event"
	EntitySkill        EntityType = "Skill"
	EntityInterest     EntityType = "Interest"
	EntityPreference   EntityType = "Preference"
	EntityDislike      EntityType = "Dislike"
	EntityAttribute    EntityType = "Attribute"
	EntityTimeSlot     EntityType = "TimeSlot"
	EntityEpisode      EntityType = "Episode"
)

// EntityTypes lists the full node taxonomy
var EntityTypes = []EntityType{
	EntityPerson, EntityOrganization, EntityLocation, EntityDocument,
	EntityEvent, EntitySkill, EntityInterest, EntityPreference,
	EntityDislike, EntityAttribute, EntityTimeSlot, EntityEpisode,
}

// TraitEntityTypes are the high-traffic node types that get composite
// (scope, owner_id) indexes so "list my traits" stays cheap
var TraitEntityTypes = []EntityType{
	EntityInterest, EntityPreference, EntityDislike, EntitySkill,
}

// IsValid reports whether t is part of the taxonomy
func (t EntityType) IsValid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RelationshipType is an edge type from the closed vocabulary
type RelationshipType string

const (
	RelHasSkill       RelationshipType = "HAS_SKILL"
	RelInterestedIn   RelationshipType = "INTERESTED_IN"
	RelPrefers        RelationshipType = "PREFERS"
	RelDislikes       RelationshipType = "DISLIKES"
	RelHasAttribute   RelationshipType = "HAS_ATTRIBUTE"
	RelMentionedWith  RelationshipType = "MENTIONED_WITH"
	RelWorksAt        RelationshipType = "WORKS_AT"
	RelLivesIn        RelationshipType = "LIVES_IN"
	RelParticipatedIn RelationshipType = "PARTICIPATED_IN"
	RelAvailableAt    RelationshipType = "AVAILABLE_AT"
	RelRelatedTo      RelationshipType = "RELATED_TO"
)

// RelationshipTypes lists the closed edge vocabulary. The underlying engine
// cannot index across mixed edge types, so index provisioning iterates this.
var RelationshipTypes = []RelationshipType{
	RelHasSkill, RelInterestedIn, RelPrefers, RelDislikes, RelHasAttribute,
	RelMentionedWith, RelWorksAt, RelLivesIn, RelParticipatedIn,
	RelAvailableAt, RelRelatedTo,
}

// IsValid reports whether t is part of the vocabulary
func (t RelationshipType) IsValid() bool {
	for _, known := range RelationshipTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ============================================================================
// Graph records
// ============================================================================

// Entity is a node in the property graph
type Entity struct {
	ID         string                 `json:"id"`
	UUID       string                 `json:"uuid"`
	Type       EntityType             `json:"type"`
	Name       string                 `json:"name"`
	Scope      Scope                  `json:"scope"`
	OwnerID    string                 `json:"owner_id,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Relationship is a directed, typed edge. Logical deletion sets ValidTo
// instead of removing the edge, so history stays queryable.
type Relationship struct {
	UUID       string           `json:"uuid"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       RelationshipType `json:"type"`
	Fact       string           `json:"fact,omitempty"`
	Scope      Scope            `json:"scope"`
	OwnerID    string           `json:"owner_id,omitempty"`
	Confidence float64          `json:"confidence"`
	ValidFrom  time.Time        `json:"valid_from"`
	ValidTo    *time.Time       `json:"valid_to,omitempty"`
}

// Episode is a provenance node for one ingested document or chunk
type Episode struct {
	ID             string    `json:"id"`
	ContentPreview string    `json:"content_preview"`
	Source         string    `json:"source"`
	SourcePath     string    `json:"source_path,omitempty"`
	Title          string    `json:"title,omitempty"`
	Scope          Scope     `json:"scope"`
	OwnerID        string    `json:"owner_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FactResult is one ranked hit from a relationship search
type FactResult struct {
	UUID       string           `json:"uuid"`
	Fact       string           `json:"fact"`
	Type       RelationshipType `json:"type"`
	Scope      Scope            `json:"scope"`
	OwnerID    string           `json:"owner_id,omitempty"`
	Confidence float64          `json:"confidence"`
	Score      float64          `json:"score"`
}

// EntityResult is one ranked hit from a node search
type EntityResult struct {
	Entity Entity  `json:"entity"`
	Score  float64 `json:"score"`
}
