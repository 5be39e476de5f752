package traits

import (
	"strings"
	"time"
)

// TraitType categorizes a fact about a user
type TraitType string

const (
	TraitSkill      TraitType = "skill"
	TraitInterest   TraitType = "interest"
	TraitPreference TraitType = "preference"
	TraitDislike    TraitType = "dislike"
	TraitAttribute  TraitType = "attribute"
)

// TraitTypes lists all trait categories
var TraitTypes = []TraitType{
	TraitSkill, TraitInterest, TraitPreference, TraitDislike, TraitAttribute,
}

// IsValid reports whether t is a known trait category
func (t TraitType) IsValid() bool {
	for _, known := range TraitTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Trait sources, used to discount confidence by reliability
const (
	SourceChatMessage = "chat_message"
	SourceDocument    = "document"
	SourceManual      = "manual"
)

// Trait is one extracted fact about a user. Traits are transient: they are
// produced by the extractor, filtered by the pipeline, and folded into the
// Profile; they are not persisted in the graph by default.
type Trait struct {
	Type       TraitType `json:"trait_type"`
	Name       string    `json:"name"`
	Category   string    `json:"category,omitempty"`
	Confidence float64   `json:"confidence"`
	Evidence   string    `json:"evidence,omitempty"`
	Source     string    `json:"source,omitempty"`
	Strength   string    `json:"strength,omitempty"`
}

// TraitEntry is one stored trait inside a Profile
type TraitEntry struct {
	Name       string    `json:"name"`
	Category   string    `json:"category,omitempty"`
	Confidence float64   `json:"confidence"`
	Evidence   string    `json:"evidence,omitempty"`
	Source     string    `json:"source,omitempty"`
	Strength   string    `json:"strength,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Profile is the per-user trait record. It is owned by the relational store
// and mutated only by the merge engine.
type Profile struct {
	UserID      string                `json:"user_id"`
	Skills      []TraitEntry          `json:"skills"`
	Interests   []TraitEntry          `json:"interests"`
	Dislikes    []TraitEntry          `json:"dislikes"`
	Preferences map[string]TraitEntry `json:"preferences"`
	Attributes  map[string]TraitEntry `json:"attributes"`
}

// NewProfile returns an empty profile for one user
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:      userID,
		Skills:      []TraitEntry{},
		Interests:   []TraitEntry{},
		Dislikes:    []TraitEntry{},
		Preferences: map[string]TraitEntry{},
		Attributes:  map[string]TraitEntry{},
	}
}

// NormalizeName canonicalizes a trait name for same-name lookups
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PreferenceKey builds the map key for a preference: category plus name
func PreferenceKey(category, name string) string {
	category = NormalizeName(category)
	name = NormalizeName(name)
	if category == "" {
		return name
	}
	return category + "/" + name
}
