package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scopegraph/backend/pkg/errors"
)

// ============================================================================
// Relationship Operations
// ============================================================================

// CreateRelationship creates a typed edge between two existing nodes. The
// edge is stamped with a fresh uuid and valid_from=now, valid_to=null; the
// scope/owner/fact/temporal fields are attached in a follow-up update,
// mirroring the two-phase entity write.
func (r *Repository) CreateRelationship(ctx context.Context, sourceID, targetID string, relType RelationshipType, properties map[string]interface{}, scope Scope, ownerID string) (string, error) {
	if !relType.IsValid() {
		return "", errors.NewInvalidValue(string(relType), "type", "not in the relationship vocabulary")
	}
	if err := validateScopeOwner(scope, ownerID); err != nil {
		return "", err
	}

	edgeUUID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)

	session := r.writeSession(ctx)
	defer session.Close(ctx)

	// relType is validated against the closed vocabulary above
	createQuery := fmt.Sprintf(`
		MATCH (a {id: $sourceID})
		MATCH (b {id: $targetID})
		CREATE (a)-[rel:%s {uuid: $uuid}]->(b)
		SET rel.valid_from = datetime($now),
		    rel.valid_to = null
		RETURN rel.uuid as uuid
	`, relType)

	result, err := session.Run(ctx, createQuery, map[string]interface{}{
		"sourceID": sourceID,
		"targetID": targetID,
		"uuid":     edgeUUID,
		"now":      now,
	})
	if err != nil {
		return "", errors.NewBackendError("create relationship", err)
	}
	if _, err := result.Single(ctx); err != nil {
		// No row back means one of the endpoints is missing
		return "", errors.NewNotFound("relationship endpoint", sourceID+" -> "+targetID)
	}

	var owner interface{}
	if ownerID != "" {
		owner = ownerID
	}
	updateQuery := fmt.Sprintf(`
		MATCH ()-[rel:%s {uuid: $uuid}]->()
		SET rel.scope = $scope,
		    rel.owner_id = $ownerID,
		    rel.fact = $fact,
		    rel.confidence = $confidence,
		    rel.context = $context
	`, relType)

	_, err = session.Run(ctx, updateQuery, map[string]interface{}{
		"uuid":       edgeUUID,
		"scope":      string(scope),
		"ownerID":    owner,
		"fact":       getStringFromMap(properties, "fact"),
		"confidence": getFloatFromMap(properties, "confidence"),
		"context":    getStringFromMap(properties, "context"),
	})
	if err != nil {
		return "", errors.NewBackendError("attach relationship fields", err)
	}

	r.logger.Debug("relationship created",
		zap.String("type", string(relType)),
		zap.String("uuid", edgeUUID),
		zap.String("scope", string(scope)),
	)
	return edgeUUID, nil
}

// RelationshipExists reports whether an active edge with the same
// (source, target, type, scope) already exists. When fact text is supplied,
// an existing edge only counts as the same fact if its stored fact shares
// more than the similarity threshold of non-stopword tokens; near-duplicate
// phrasings of one fact collapse, distinct facts between the same endpoints
// do not.
func (r *Repository) RelationshipExists(ctx context.Context, sourceID, targetID string, relType RelationshipType, scope Scope, fact string) (bool, error) {
	if !relType.IsValid() {
		return false, errors.NewInvalidValue(string(relType), "type", "not in the relationship vocabulary")
	}

	query := fmt.Sprintf(`
		MATCH (a {id: $sourceID})-[rel:%s]->(b {id: $targetID})
		WHERE rel.scope = $scope AND rel.valid_to IS NULL
		RETURN rel.fact as fact
	`, relType)

	records, err := r.collectRead(ctx, query, map[string]interface{}{
		"sourceID": sourceID,
		"targetID": targetID,
		"scope":    string(scope),
	})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	if fact == "" {
		return true, nil
	}

	for _, record := range records {
		stored := getStringFromRecord(record, "fact")
		if factsSimilar(stored, fact, r.similarityThreshold) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteRelationship removes an edge by uuid. A logical delete only stamps
// valid_to, leaving the edge queryable for point-in-time reads; a physical
// delete removes it outright. Returns false when no active edge matched.
func (r *Repository) DeleteRelationship(ctx context.Context, edgeUUID string, logical bool) (bool, error) {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	if logical {
		now := time.Now().UTC().Format(time.RFC3339)
		result, err := session.Run(ctx, `
			MATCH ()-[rel {uuid: $uuid}]->()
			WHERE rel.valid_to IS NULL
			SET rel.valid_to = datetime($now)
			RETURN count(rel) as updated
		`, map[string]interface{}{"uuid": edgeUUID, "now": now})
		if err != nil {
			return false, errors.NewBackendError("logical delete relationship", err)
		}
		record, err := result.Single(ctx)
		if err != nil {
			return false, errors.NewBackendError("logical delete relationship", err)
		}
		updated, _ := record.Get("updated")
		count, _ := updated.(int64)
		return count > 0, nil
	}

	result, err := session.Run(ctx, `
		MATCH ()-[rel {uuid: $uuid}]->()
		DELETE rel
	`, map[string]interface{}{"uuid": edgeUUID})
	if err != nil {
		return false, errors.NewBackendError("delete relationship", err)
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return false, errors.NewBackendError("delete relationship", err)
	}
	return summary.Counters().RelationshipsDeleted() > 0, nil
}

// GetRelationship fetches one edge by uuid regardless of validity window
func (r *Repository) GetRelationship(ctx context.Context, edgeUUID string) (*Relationship, error) {
	query := `
		MATCH (a)-[rel {uuid: $uuid}]->(b)
		RETURN properties(rel) as props, type(rel) as rel_type,
		       a.id as source_id, b.id as target_id
		LIMIT 1
	`
	records, err := r.collectRead(ctx, query, map[string]interface{}{"uuid": edgeUUID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	record := records[0]
	props, _ := record.Get("props")
	propsMap, ok := props.(map[string]interface{})
	if !ok {
		return nil, nil
	}

	rel := &Relationship{
		UUID:       getStringFromMap(propsMap, "uuid"),
		SourceID:   getStringFromRecord(record, "source_id"),
		TargetID:   getStringFromRecord(record, "target_id"),
		Type:       RelationshipType(getStringFromRecord(record, "rel_type")),
		Fact:       getStringFromMap(propsMap, "fact"),
		Scope:      Scope(getStringFromMap(propsMap, "scope")),
		OwnerID:    getStringFromMap(propsMap, "owner_id"),
		Confidence: getFloatFromMap(propsMap, "confidence"),
		ValidFrom:  getTimeFromMap(propsMap, "valid_from"),
		ValidTo:    getTimePtrFromMap(propsMap, "valid_to"),
	}
	return rel, nil
}
