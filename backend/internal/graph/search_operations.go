package graph

import (
	"context"
	"fmt"
	"time"
)

// ============================================================================
// Search Operations
// ============================================================================

const (
	entitySearchIndex      = "entity_search"
	relationshipFactsIndex = "relationship_facts"
	defaultSearchLimit     = 20
)

// scopeFilter builds the visibility predicate for a search. The access rule:
// an owner without an explicit scope sees their own user-scoped content plus
// everything global, and never another owner's content. An explicit scope
// filters literally, with no implicit global union.
func scopeFilter(alias string, scope Scope, ownerID string, params map[string]interface{}) string {
	if scope != "" {
		params["scope"] = string(scope)
		if ownerID != "" {
			params["ownerID"] = ownerID
			return fmt.Sprintf("%s.scope = $scope AND %s.owner_id = $ownerID", alias, alias)
		}
		return fmt.Sprintf("%s.scope = $scope", alias)
	}
	if ownerID != "" {
		params["ownerID"] = ownerID
		return fmt.Sprintf("((%s.scope = 'user' AND %s.owner_id = $ownerID) OR %s.scope = 'global')", alias, alias, alias)
	}
	return "true"
}

// Search runs a full-text query over relationship facts, returning active
// facts visible to the caller ranked by the engine's relevance score.
func (r *Repository) Search(ctx context.Context, query string, scope Scope, ownerID string, limit int) ([]FactResult, error) {
	if limit < 1 {
		limit = defaultSearchLimit
	}

	params := map[string]interface{}{
		"query": query,
		"limit": limit,
	}
	filter := scopeFilter("rel", scope, ownerID, params)

	searchQuery := fmt.Sprintf(`
		CALL db.index.fulltext.queryRelationships('%s', $query)
		YIELD relationship as rel, score
		WHERE %s AND rel.valid_to IS NULL
		RETURN rel.uuid as uuid, rel.fact as fact, type(rel) as rel_type,
		       rel.scope as scope, rel.owner_id as owner_id,
		       rel.confidence as confidence, score
		ORDER BY score DESC
		LIMIT $limit
	`, relationshipFactsIndex, filter)

	records, err := r.collectRead(ctx, searchQuery, params)
	if err != nil {
		return nil, err
	}

	results := make([]FactResult, 0, len(records))
	for _, record := range records {
		fact := getStringFromRecord(record, "fact")
		if fact == "" {
			continue
		}
		results = append(results, FactResult{
			UUID:       getStringFromRecord(record, "uuid"),
			Fact:       fact,
			Type:       RelationshipType(getStringFromRecord(record, "rel_type")),
			Scope:      Scope(getStringFromRecord(record, "scope")),
			OwnerID:    getStringFromRecord(record, "owner_id"),
			Confidence: getFloatFromRecord(record, "confidence"),
			Score:      getFloatFromRecord(record, "score"),
		})
	}
	return results, nil
}

// NodeSearch runs a full-text query over entity textual fields under the
// same visibility rule as Search.
func (r *Repository) NodeSearch(ctx context.Context, query string, scope Scope, ownerID string, limit int) ([]EntityResult, error) {
	if limit < 1 {
		limit = defaultSearchLimit
	}

	params := map[string]interface{}{
		"query": query,
		"limit": limit,
	}
	filter := scopeFilter("node", scope, ownerID, params)

	searchQuery := fmt.Sprintf(`
		CALL db.index.fulltext.queryNodes('%s', $query)
		YIELD node, score
		WHERE %s
		RETURN properties(node) as props, labels(node) as labels, score
		ORDER BY score DESC
		LIMIT $limit
	`, entitySearchIndex, filter)

	records, err := r.collectRead(ctx, searchQuery, params)
	if err != nil {
		return nil, err
	}

	results := make([]EntityResult, 0, len(records))
	for _, record := range records {
		props, _ := record.Get("props")
		propsMap, ok := props.(map[string]interface{})
		if !ok {
			continue
		}
		var labels []string
		if raw, ok := record.Get("labels"); ok {
			if list, ok := raw.([]interface{}); ok {
				for _, l := range list {
					if s, ok := l.(string); ok {
						labels = append(labels, s)
					}
				}
			}
		}
		results = append(results, EntityResult{
			Entity: entityFromProps(propsMap, labels),
			Score:  getFloatFromRecord(record, "score"),
		})
	}
	return results, nil
}

// SearchAt is Search evaluated as of a past instant: only edges whose
// [valid_from, valid_to) window contained the point in time are returned,
// so logically deleted facts reappear for historical reads.
func (r *Repository) SearchAt(ctx context.Context, query string, scope Scope, ownerID string, pointInTime time.Time, limit int) ([]FactResult, error) {
	if limit < 1 {
		limit = defaultSearchLimit
	}

	params := map[string]interface{}{
		"query": query,
		"limit": limit,
		"at":    pointInTime.UTC().Format(time.RFC3339),
	}
	filter := scopeFilter("rel", scope, ownerID, params)

	searchQuery := fmt.Sprintf(`
		CALL db.index.fulltext.queryRelationships('%s', $query)
		YIELD relationship as rel, score
		WHERE %s
		  AND rel.valid_from <= datetime($at)
		  AND (rel.valid_to IS NULL OR rel.valid_to > datetime($at))
		RETURN rel.uuid as uuid, rel.fact as fact, type(rel) as rel_type,
		       rel.scope as scope, rel.owner_id as owner_id,
		       rel.confidence as confidence, score
		ORDER BY score DESC
		LIMIT $limit
	`, relationshipFactsIndex, filter)

	records, err := r.collectRead(ctx, searchQuery, params)
	if err != nil {
		return nil, err
	}

	results := make([]FactResult, 0, len(records))
	for _, record := range records {
		results = append(results, FactResult{
			UUID:       getStringFromRecord(record, "uuid"),
			Fact:       getStringFromRecord(record, "fact"),
			Type:       RelationshipType(getStringFromRecord(record, "rel_type")),
			Scope:      Scope(getStringFromRecord(record, "scope")),
			OwnerID:    getStringFromRecord(record, "owner_id"),
			Confidence: getFloatFromRecord(record, "confidence"),
			Score:      getFloatFromRecord(record, "score"),
		})
	}
	return results, nil
}

// TemporalQuery re-executes an arbitrary parameterized read as of a past
// instant. When pointInTime is set, the query receives it as $point_in_time
// and is expected to constrain edges with the standard validity predicate:
//
//	rel.valid_from <= datetime($point_in_time)
//	AND (rel.valid_to IS NULL OR rel.valid_to > datetime($point_in_time))
//
// With a nil pointInTime the query runs against the present and $point_in_time
// is bound to now.
func (r *Repository) TemporalQuery(ctx context.Context, query string, params map[string]interface{}, pointInTime *time.Time) ([]map[string]interface{}, error) {
	if params == nil {
		params = make(map[string]interface{})
	}
	at := time.Now().UTC()
	if pointInTime != nil {
		at = pointInTime.UTC()
	}
	params["point_in_time"] = at.Format(time.RFC3339)

	records, err := r.collectRead(ctx, query, params)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		row := make(map[string]interface{}, len(record.Keys))
		for _, key := range record.Keys {
			val, _ := record.Get(key)
			row[key] = val
		}
		rows = append(rows, row)
	}
	return rows, nil
}
