package graph

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"scopegraph/backend/pkg/errors"
)

// ============================================================================
// Index Provisioning
// ============================================================================

// entityTextFields are the textual properties covered by the entity
// full-text index
var entityTextFields = []string{"name", "title", "summary", "context_title", "content_preview"}

// relationshipTextFields are the textual properties covered by the
// relationship full-text index
var relationshipTextFields = []string{"fact", "name", "context"}

// EnsureIndexes provisions every index the store depends on. Idempotent; run
// at startup. The engine cannot index across mixed edge types in a single
// property index, so per-type scope and owner indexes are created for each
// relationship type in the vocabulary.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	var statements []string

	// (a) one full-text index spanning every entity type's textual fields
	labels := make([]string, len(EntityTypes))
	for i, t := range EntityTypes {
		labels[i] = string(t)
	}
	statements = append(statements, fmt.Sprintf(
		"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (n:%s) ON EACH [%s]",
		entitySearchIndex,
		strings.Join(labels, "|"),
		fieldList("n", entityTextFields),
	))

	// (b) one full-text index over the relationship vocabulary
	relTypes := make([]string, len(RelationshipTypes))
	for i, t := range RelationshipTypes {
		relTypes[i] = string(t)
	}
	statements = append(statements, fmt.Sprintf(
		"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR ()-[r:%s]-() ON EACH [%s]",
		relationshipFactsIndex,
		strings.Join(relTypes, "|"),
		fieldList("r", relationshipTextFields),
	))

	// (c) composite (scope, owner_id) indexes for the high-traffic trait types
	for _, t := range TraitEntityTypes {
		statements = append(statements, fmt.Sprintf(
			"CREATE INDEX idx_%s_scope_owner IF NOT EXISTS FOR (n:%s) ON (n.scope, n.owner_id)",
			strings.ToLower(string(t)), t,
		))
	}

	// (d) per relationship type, separate indexes on scope and owner_id
	for _, t := range RelationshipTypes {
		lower := strings.ToLower(string(t))
		statements = append(statements, fmt.Sprintf(
			"CREATE INDEX idx_rel_%s_scope IF NOT EXISTS FOR ()-[r:%s]-() ON (r.scope)", lower, t,
		))
		statements = append(statements, fmt.Sprintf(
			"CREATE INDEX idx_rel_%s_owner IF NOT EXISTS FOR ()-[r:%s]-() ON (r.owner_id)", lower, t,
		))
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return errors.NewBackendError("ensure indexes", err)
		}
	}

	r.logger.Info("graph indexes ensured", zap.Int("statements", len(statements)))
	return nil
}

func fieldList(alias string, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = alias + "." + f
	}
	return strings.Join(parts, ", ")
}
