package profile

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"scopegraph/backend/internal/traits"
	"scopegraph/backend/pkg/errors"
	"scopegraph/backend/pkg/logger"
)

// Store persists user profiles in Postgres. One row per user; the trait
// collections live in jsonb columns. Implements traits.ProfileStore.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a profile store on the given connection pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: logger.Named("profile"),
	}
}

// EnsureSchema creates the profile table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id     text PRIMARY KEY,
			skills      jsonb NOT NULL DEFAULT '[]',
			interests   jsonb NOT NULL DEFAULT '[]',
			dislikes    jsonb NOT NULL DEFAULT '[]',
			preferences jsonb NOT NULL DEFAULT '{}',
			attributes  jsonb NOT NULL DEFAULT '{}',
			updated_at  timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure profile schema: %w", err)
	}
	return nil
}

// GetProfile reads a user's profile without locking. A user with no row yet
// gets an empty profile.
func (s *Store) GetProfile(ctx context.Context, userID string) (*traits.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT skills, interests, dislikes, preferences, attributes
		FROM user_profiles
		WHERE user_id = $1
	`, userID)

	p, err := scanProfile(row, userID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return traits.NewProfile(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile for %s: %w", userID, err)
	}
	return p, nil
}

// UpdateProfile runs fn against the user's profile inside one transaction
// with the row locked FOR UPDATE. Concurrent merges for the same user
// serialize on the row lock; a failed commit rolls the whole batch back and
// surfaces as a MergeConflictError.
func (s *Store) UpdateProfile(ctx context.Context, userID string, fn func(*traits.Profile) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.NewMergeConflict(userID, err)
	}
	defer tx.Rollback(ctx)

	// Make sure the row exists before locking it
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_profiles (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return errors.NewMergeConflict(userID, err)
	}

	row := tx.QueryRow(ctx, `
		SELECT skills, interests, dislikes, preferences, attributes
		FROM user_profiles
		WHERE user_id = $1
		FOR UPDATE
	`, userID)

	p, err := scanProfile(row, userID)
	if err != nil {
		return errors.NewMergeConflict(userID, err)
	}

	if err := fn(p); err != nil {
		return err
	}

	skills, interests, dislikes, preferences, attributes, err := marshalProfile(p)
	if err != nil {
		return errors.NewMergeConflict(userID, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_profiles
		SET skills = $2, interests = $3, dislikes = $4,
		    preferences = $5, attributes = $6, updated_at = now()
		WHERE user_id = $1
	`, userID, skills, interests, dislikes, preferences, attributes); err != nil {
		return errors.NewMergeConflict(userID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.NewMergeConflict(userID, err)
	}

	s.logger.Debug("profile updated", zap.String("user_id", userID))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, userID string) (*traits.Profile, error) {
	var skills, interests, dislikes, preferences, attributes []byte
	if err := row.Scan(&skills, &interests, &dislikes, &preferences, &attributes); err != nil {
		return nil, err
	}

	p := traits.NewProfile(userID)
	for _, field := range []struct {
		raw  []byte
		dest interface{}
	}{
		{skills, &p.Skills},
		{interests, &p.Interests},
		{dislikes, &p.Dislikes},
		{preferences, &p.Preferences},
		{attributes, &p.Attributes},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return nil, fmt.Errorf("corrupt profile column: %w", err)
		}
	}
	return p, nil
}

func marshalProfile(p *traits.Profile) (skills, interests, dislikes, preferences, attributes []byte, err error) {
	if skills, err = json.Marshal(p.Skills); err != nil {
		return
	}
	if interests, err = json.Marshal(p.Interests); err != nil {
		return
	}
	if dislikes, err = json.Marshal(p.Dislikes); err != nil {
		return
	}
	if preferences, err = json.Marshal(p.Preferences); err != nil {
		return
	}
	attributes, err = json.Marshal(p.Attributes)
	return
}
