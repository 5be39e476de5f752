package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scopegraph/backend/pkg/errors"
)

// ============================================================================
// Entity Operations
// ============================================================================

// validateScopeOwner enforces the ownership invariant: global content has no
// owner, everything else must have one.
func validateScopeOwner(scope Scope, ownerID string) error {
	if !scope.IsValid() {
		return errors.NewInvalidValue("", "scope", fmt.Sprintf("unknown scope %q", scope))
	}
	if scope == ScopeGlobal && ownerID != "" {
		return errors.NewInvalidValue("", "owner_id", "global content must not have an owner")
	}
	if scope != ScopeGlobal && ownerID == "" {
		return errors.NewInvalidValue("", "owner_id", fmt.Sprintf("scope %q requires an owner", scope))
	}
	return nil
}

// CreateEntity validates properties against the type's schema and creates the
// node, then attaches scope and owner in a follow-up write so the validation
// path never has to special-case the two reserved fields.
//
// Write failures after validation are logged and the generated id is still
// returned: bulk ingestion stays resilient, and callers needing hard
// guarantees must verify the id exists. Validation failures return an error.
func (r *Repository) CreateEntity(ctx context.Context, entityType EntityType, properties map[string]interface{}, scope Scope, ownerID string) (string, error) {
	if !entityType.IsValid() {
		return "", errors.NewInvalidValue(string(entityType), "type", "not in the entity taxonomy")
	}
	if err := validateScopeOwner(scope, ownerID); err != nil {
		return "", err
	}

	validated, err := ValidateProperties(entityType, properties)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	validated["id"] = id
	if getStringFromMap(validated, "uuid") == "" {
		validated["uuid"] = uuid.New().String()
	}
	now := time.Now().UTC().Format(time.RFC3339)

	session := r.writeSession(ctx)
	defer session.Close(ctx)

	// entityType is validated against the closed taxonomy above, so the
	// label interpolation never carries user input.
	createQuery := fmt.Sprintf(`
		CREATE (e:%s $props)
		SET e.created_at = datetime($now)
		RETURN e.id as id
	`, entityType)

	_, err = session.Run(ctx, createQuery, map[string]interface{}{
		"props": validated,
		"now":   now,
	})
	if err != nil {
		r.logger.Error("entity create failed, returning id best-effort",
			zap.String("type", string(entityType)),
			zap.String("id", id),
			zap.Error(err),
		)
		return id, nil
	}

	// Second write attaches the reserved visibility fields
	scopeQuery := fmt.Sprintf(`
		MATCH (e:%s {id: $id})
		SET e.scope = $scope,
		    e.owner_id = $ownerID
	`, entityType)

	var owner interface{}
	if ownerID != "" {
		owner = ownerID
	}
	_, err = session.Run(ctx, scopeQuery, map[string]interface{}{
		"id":      id,
		"scope":   string(scope),
		"ownerID": owner,
	})
	if err != nil {
		r.logger.Error("entity scope attach failed, returning id best-effort",
			zap.String("type", string(entityType)),
			zap.String("id", id),
			zap.Error(err),
		)
	}

	r.logger.Debug("entity created",
		zap.String("type", string(entityType)),
		zap.String("id", id),
		zap.String("scope", string(scope)),
	)
	return id, nil
}

// FindEntity looks up an entity by exact, case-sensitive name or title match,
// optionally narrowed by type, scope, and owner. Returns nil when nothing
// matches; used for deduplication before creation.
func (r *Repository) FindEntity(ctx context.Context, name string, entityType EntityType, scope Scope, ownerID string) (*Entity, error) {
	match := "(e)"
	if entityType != "" {
		if !entityType.IsValid() {
			return nil, errors.NewInvalidValue(string(entityType), "type", "not in the entity taxonomy")
		}
		match = fmt.Sprintf("(e:%s)", entityType)
	}

	conditions := []string{"(e.name = $name OR e.title = $name)"}
	params := map[string]interface{}{"name": name}
	if scope != "" {
		conditions = append(conditions, "e.scope = $scope")
		params["scope"] = string(scope)
	}
	if ownerID != "" {
		conditions = append(conditions, "e.owner_id = $ownerID")
		params["ownerID"] = ownerID
	}

	query := fmt.Sprintf(`
		MATCH %s
		WHERE %s
		RETURN properties(e) as props, labels(e) as labels
		LIMIT 1
	`, match, strings.Join(conditions, " AND "))

	records, err := r.collectRead(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	props, _ := records[0].Get("props")
	labelsVal, _ := records[0].Get("labels")
	propsMap, ok := props.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	var labels []string
	if raw, ok := labelsVal.([]interface{}); ok {
		for _, l := range raw {
			if s, ok := l.(string); ok {
				labels = append(labels, s)
			}
		}
	}

	entity := entityFromProps(propsMap, labels)
	return &entity, nil
}

// DeleteEntity physically removes a node and its edges. Returns false when
// the id does not exist; "already gone" is not an error.
func (r *Repository) DeleteEntity(ctx context.Context, id string) (bool, error) {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (e {id: $id})
		DETACH DELETE e
	`, map[string]interface{}{"id": id})
	if err != nil {
		return false, errors.NewBackendError("delete entity", err)
	}

	summary, err := result.Consume(ctx)
	if err != nil {
		return false, errors.NewBackendError("delete entity", err)
	}
	deleted := summary.Counters().NodesDeleted() > 0
	if deleted {
		r.logger.Debug("entity deleted", zap.String("id", id))
	}
	return deleted, nil
}
