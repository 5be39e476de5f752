package graph

import (
	"scopegraph/backend/pkg/errors"
)

// ============================================================================
// Per-type property schemas
// ============================================================================

// UntitledDocument is the fallback title for Document nodes created without one
const UntitledDocument = "Untitled Document"

// propertySchema declares the required and optional properties of one
// entity type. scope/owner_id are reserved fields attached in a second
// write and never appear here.
type propertySchema struct {
	Required []string
	Optional []string
}

// commonFields are allowed on every entity type in addition to its schema
var commonFields = map[string]bool{
	"uuid":               true,
	"summary":            true,
	"source_id":          true,
	"context_title":      true,
	"message_id":         true,
	"conversation_title": true,
}

var entitySchemas = map[EntityType]propertySchema{
	EntityPerson: {
		Required: []string{"name"},
		Optional: []string{"role", "organization", "location", "notes"},
	},
	EntityOrganization: {
		Required: []string{"name"},
		Optional: []string{"industry", "location", "website"},
	},
	EntityLocation: {
		Required: []string{"name"},
		Optional: []string{"city", "region", "country"},
	},
	EntityDocument: {
		// Missing title is tolerated and defaulted, see ValidateProperties
		Required: []string{"title"},
		Optional: []string{"source_path", "content_type", "word_count"},
	},
	EntityEvent: {
		Required: []string{"name"},
		Optional: []string{"starts_at", "ends_at", "location", "description"},
	},
	EntitySkill: {
		Required: []string{"name"},
		Optional: []string{"proficiency", "years"},
	},
	EntityInterest: {
		Required: []string{"name"},
		Optional: []string{"category", "strength"},
	},
	EntityPreference: {
		Required: []string{"name"},
		Optional: []string{"category", "strength"},
	},
	EntityDislike: {
		Required: []string{"name"},
		Optional: []string{"category", "strength"},
	},
	EntityAttribute: {
		Required: []string{"name"},
		Optional: []string{"value", "category"},
	},
	EntityTimeSlot: {
		Required: []string{"name"},
		Optional: []string{"day_of_week", "start_hour", "end_hour", "recurring"},
	},
	EntityEpisode: {
		Required: []string{"content_preview", "source"},
		Optional: []string{"title", "source_path", "chunk_index"},
	},
}

// ValidateProperties checks properties against the type's schema and returns
// a normalized copy ready to write. Missing required fields fail, except a
// Document without a title, which gets the default. Properties outside the
// type's allowed set and the common fields fail.
func ValidateProperties(entityType EntityType, properties map[string]interface{}) (map[string]interface{}, error) {
	schema, ok := entitySchemas[entityType]
	if !ok {
		return nil, errors.NewInvalidValue(string(entityType), "type", "unknown entity type")
	}

	normalized := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		normalized[k] = v
	}

	for _, field := range schema.Required {
		val, present := normalized[field]
		empty := !present
		if s, isStr := val.(string); present && isStr && s == "" {
			empty = true
		}
		if empty {
			if entityType == EntityDocument && field == "title" {
				normalized["title"] = UntitledDocument
				continue
			}
			return nil, errors.NewMissingRequiredField(string(entityType), field)
		}
	}

	allowed := make(map[string]bool, len(schema.Required)+len(schema.Optional))
	for _, f := range schema.Required {
		allowed[f] = true
	}
	for _, f := range schema.Optional {
		allowed[f] = true
	}
	for field := range normalized {
		if !allowed[field] && !commonFields[field] {
			return nil, errors.NewUnknownProperty(string(entityType), field)
		}
	}

	return normalized, nil
}

// displayNameField returns the property holding the human-readable name of
// an entity type. Documents are titled, everything else is named.
func displayNameField(entityType EntityType) string {
	if entityType == EntityDocument {
		return "title"
	}
	return "name"
}
