package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/models"
)

const schemeColumns = `
	id, name, COALESCE(description, ''), category, COALESCE(state, ''),
	rules, documents, benefit_type, benefit_amount, COALESCE(benefit_description, ''),
	start_date, end_date, is_ongoing, popularity, success_rate, active`

// Schemes without a state are national and match every state filter.
const listSchemesSQL = `SELECT` + schemeColumns + `
	FROM schemes
	WHERE active = TRUE
	  AND (is_ongoing OR end_date IS NULL OR end_date >= $1)
	  AND ($2 = '' OR lower(category) = lower($2))
	  AND ($3 = '' OR COALESCE(state, '') = '' OR lower(state) = lower($3))
	  AND ($4 = '' OR lower(benefit_type) = lower($4))
	ORDER BY id`

const getSchemeSQL = `SELECT` + schemeColumns + `
	FROM schemes
	WHERE id = $1`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// PostgresCatalog reads the schemes table. rules and documents are JSONB arrays.
type PostgresCatalog struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewPostgresCatalog(db *sql.DB, log logger.Logger, now func() time.Time) *PostgresCatalog {
	if now == nil {
		now = time.Now
	}
	return &PostgresCatalog{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "catalog-postgres"}),
		now:    now,
	}
}

// GetSchemes skips rows whose rule document is invalid; one bad scheme never
// fails the batch.
func (c *PostgresCatalog) GetSchemes(ctx context.Context, filters models.SchemeFilters) ([]models.Scheme, error) {
	rows, err := c.db.QueryContext(ctx, listSchemesSQL,
		c.now().UTC(), filters.Category, filters.State, filters.BenefitType)
	if err != nil {
		return nil, fmt.Errorf("query schemes: %w", err)
	}
	defer rows.Close()

	schemes := make([]models.Scheme, 0)
	for rows.Next() {
		s, err := scanScheme(rows)
		var invalid *InvalidRulesError
		if errors.As(err, &invalid) {
			c.logger.Warn("skipping scheme with invalid rules", map[string]interface{}{
				"schemeId": invalid.SchemeID,
				"reason":   invalid.Reason,
			})
			continue
		}
		if err != nil {
			return nil, err
		}
		schemes = append(schemes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemes: %w", err)
	}
	return schemes, nil
}

func (c *PostgresCatalog) GetScheme(ctx context.Context, schemeID string) (*models.Scheme, error) {
	s, err := scanScheme(c.db.QueryRowContext(ctx, getSchemeSQL, schemeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSchemeNotFound
	}
	if err != nil {
		return nil, err
	}
	if !available(s, c.now()) {
		return nil, models.ErrSchemeNotFound
	}
	return &s, nil
}

func scanScheme(row rowScanner) (models.Scheme, error) {
	var (
		s                   models.Scheme
		rulesRaw, documents []byte
		amount, successRate sql.NullFloat64
		startDate, endDate  sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.Description, &s.Category, &s.State,
		&rulesRaw, &documents, &s.Benefit.Type, &amount, &s.Benefit.Description,
		&startDate, &endDate, &s.Timeline.IsOngoing, &s.Popularity, &successRate, &s.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return s, err
	}
	if err != nil {
		return s, fmt.Errorf("scan scheme: %w", err)
	}

	if s.Rules, err = decodeRules(s.ID, rulesRaw); err != nil {
		return s, err
	}
	if len(documents) > 0 {
		if err := json.Unmarshal(documents, &s.Documents); err != nil {
			return s, fmt.Errorf("decode documents for scheme %s: %w", s.ID, err)
		}
	}
	if amount.Valid {
		v := amount.Float64
		s.Benefit.Amount = &v
	}
	if successRate.Valid {
		v := successRate.Float64
		s.SuccessRate = &v
	}
	if startDate.Valid {
		t := startDate.Time
		s.Timeline.StartDate = &t
	}
	if endDate.Valid {
		t := endDate.Time
		s.Timeline.EndDate = &t
	}
	return s, nil
}
