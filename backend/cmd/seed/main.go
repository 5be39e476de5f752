package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"scopegraph/backend/internal/graph"
	"scopegraph/backend/pkg/config"
	"scopegraph/backend/pkg/logger"
)

// Seeds the graph with constraints, indexes, and a small set of sample
// scoped data for local development.
func main() {
	ownerID := flag.String("owner", "demo-user", "Owner ID for the sample user-scoped data")
	reset := flag.Bool("reset", false, "Delete all existing nodes and relationships first")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph seeding...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	if *reset {
		log.Warn("Deleting all existing graph data")
		if err := deleteAllData(ctx, driver); err != nil {
			log.Fatal("Failed to reset graph", zap.Error(err))
		}
	}

	if err := createConstraints(ctx, driver); err != nil {
		log.Fatal("Failed to create constraints", zap.Error(err))
	}

	repo := graph.NewRepository(driver)
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Fatal("Failed to ensure indexes", zap.Error(err))
	}

	if err := seedSampleData(ctx, repo, *ownerID); err != nil {
		log.Fatal("Failed to seed sample data", zap.Error(err))
	}

	log.Info("Seeding complete", zap.String("owner", *ownerID))
}

// deleteAllData deletes all nodes and relationships in batches
func deleteAllData(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for {
		result, err := session.Run(ctx,
			"MATCH (n) WITH n LIMIT 10000 DETACH DELETE n RETURN count(n) AS deleted", nil)
		if err != nil {
			return err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return err
		}
		deleted, _ := record.Get("deleted")
		if count, ok := deleted.(int64); !ok || count == 0 {
			return nil
		}
	}
}

// createConstraints creates uniqueness constraints for node identity fields
func createConstraints(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, entityType := range graph.EntityTypes {
		constraint := fmt.Sprintf(
			"CREATE CONSTRAINT %s_uuid_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.uuid IS UNIQUE",
			toSnake(string(entityType)), entityType,
		)
		if _, err := session.Run(ctx, constraint, nil); err != nil {
			return fmt.Errorf("constraint for %s: %w", entityType, err)
		}
	}
	return nil
}

func toSnake(s string) string {
	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// seedSampleData creates a handful of scoped entities and relationships so
// search and access-control behavior can be exercised immediately
func seedSampleData(ctx context.Context, repo *graph.Repository, ownerID string) error {
	type entitySpec struct {
		entityType graph.EntityType
		props      map[string]interface{}
		scope      graph.Scope
		owner      string
	}

	entities := []entitySpec{
		{graph.EntityPerson, map[string]interface{}{"name": "Demo User"}, graph.ScopeUser, ownerID},
		{graph.EntitySkill, map[string]interface{}{"name": "Go"}, graph.ScopeUser, ownerID},
		{graph.EntityInterest, map[string]interface{}{"name": "Hiking"}, graph.ScopeUser, ownerID},
		{graph.EntityOrganization, map[string]interface{}{"name": "Acme Corp", "summary": "A sample employer"}, graph.ScopeGlobal, ""},
		{graph.EntityLocation, map[string]interface{}{"name": "Lisbon"}, graph.ScopeGlobal, ""},
	}

	ids := make(map[string]string, len(entities))
	for _, e := range entities {
		id, err := repo.CreateEntity(ctx, e.entityType, e.props, e.scope, e.owner)
		if err != nil {
			return err
		}
		name, _ := e.props["name"].(string)
		ids[name] = id
	}

	type relSpec struct {
		source, target string
		relType        graph.RelationshipType
		fact           string
	}

	rels := []relSpec{
		{"Demo User", "Go", graph.RelHasSkill, "Demo User is proficient in Go"},
		{"Demo User", "Hiking", graph.RelInterestedIn, "Demo User enjoys hiking on weekends"},
		{"Demo User", "Acme Corp", graph.RelWorksAt, "Demo User works at Acme Corp"},
		{"Demo User", "Lisbon", graph.RelLivesIn, "Demo User lives in Lisbon"},
	}

	for _, r := range rels {
		if _, err := repo.CreateRelationship(ctx, ids[r.source], ids[r.target], r.relType,
			map[string]interface{}{"fact": r.fact, "confidence": 0.95},
			graph.ScopeUser, ownerID); err != nil {
			return err
		}
	}
	return nil
}
