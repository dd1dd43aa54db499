// Package profile adapts the citizen profile sources to the engine.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/models"
)

const selectProfileSQL = `
	SELECT user_id, attributes, completeness, COALESCE(language, ''), updated_at
	FROM citizen_profiles
	WHERE user_id = $1`

// PostgresStore reads profiles from the citizen_profiles table, where
// attributes is a JSONB object of field name to scalar or array.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "profile-postgres"}),
	}
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var (
		p   models.Profile
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, selectProfileSQL, userID).
		Scan(&p.UserID, &raw, &p.Completeness, &p.Language, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile %s: %w", userID, err)
	}

	p.Attributes = models.Attributes{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes for %s: %w", userID, err)
		}
	}

	s.logger.Debug("profile loaded", map[string]interface{}{
		"userId":     userID,
		"attributes": len(p.Attributes),
	})
	return &p, nil
}
