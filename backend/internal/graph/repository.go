package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"scopegraph/backend/pkg/errors"
	"scopegraph/backend/pkg/logger"
)

// FailureMode controls how the repository treats failed read queries
type FailureMode int

const (
	// FailClosed propagates backend failures to the caller. Production default.
	FailClosed FailureMode = iota
	// DegradeToEmpty resolves failed reads to empty results so ingestion
	// pipelines keep moving during development. Never use in production.
	DegradeToEmpty
)

// DefaultFactSimilarityThreshold is the non-stopword Jaccard overlap above
// which two relationship facts are treated as the same fact. Heuristic,
// tunable via WithFactSimilarityThreshold.
const DefaultFactSimilarityThreshold = 0.4

// Repository handles all Neo4j database operations for the scoped graph
type Repository struct {
	driver              neo4j.DriverWithContext
	logger              *zap.Logger
	failureMode         FailureMode
	similarityThreshold float64
}

// Option configures a Repository
type Option func(*Repository)

// WithFailureMode sets how failed reads are handled
func WithFailureMode(mode FailureMode) Option {
	return func(r *Repository) { r.failureMode = mode }
}

// WithFactSimilarityThreshold overrides the duplicate-fact cutoff
func WithFactSimilarityThreshold(threshold float64) Option {
	return func(r *Repository) { r.similarityThreshold = threshold }
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext, opts ...Option) *Repository {
	r := &Repository{
		driver:              driver,
		logger:              logger.Named("graph"),
		failureMode:         FailClosed,
		similarityThreshold: DefaultFactSimilarityThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// readSession opens a read session against the graph
func (r *Repository) readSession(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
}

// writeSession opens a write session against the graph
func (r *Repository) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

// collectRead runs a read query and gathers all records. Under DegradeToEmpty
// a failed query resolves to no records instead of an error.
func (r *Repository) collectRead(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return r.degradeRead("run query", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return r.degradeRead("collect records", err)
	}
	return records, nil
}

func (r *Repository) degradeRead(operation string, err error) ([]*neo4j.Record, error) {
	if r.failureMode == DegradeToEmpty {
		r.logger.Warn("read degraded to empty result",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return nil, nil
	}
	return nil, errors.NewBackendError(operation, err)
}
