package cache

import (
	"context"
	"errors"
	"time"

	commonerrors "welfare-recommender/internal/common/errors"
	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/common/metrics"
	"welfare-recommender/internal/models"

	"github.com/google/uuid"
)

const DefaultTTL = 6 * time.Hour

// Manager enforces expiry on top of a Store and turns backend failures into
// misses so that callers can always fall back to recomputing.
type Manager struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

func NewManager(store Store, ttl time.Duration, now func() time.Time, log logger.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  store,
		ttl:    ttl,
		now:    now,
		logger: log.WithFields(map[string]interface{}{"component": "recommendation-cache"}),
	}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Get returns the entry only while now < ExpiresAt and only if it was
// written for the same user and filter set.
func (m *Manager) Get(ctx context.Context, userID, filterKey string) (*models.CacheEntry, bool) {
	entry, err := m.store.Get(ctx, Key(userID, filterKey))
	switch {
	case errors.Is(err, ErrMiss):
		metrics.RecommendationCache.WithLabelValues("get", "miss").Inc()
		return nil, false
	case err != nil:
		metrics.RecommendationCache.WithLabelValues("get", "error").Inc()
		m.logger.Warn("cache read failed, recomputing", map[string]interface{}{
			"userId": userID,
			"error":  commonerrors.NewCacheUnavailableError("get", err).Details,
		})
		return nil, false
	}

	if entry.UserID != userID || entry.FilterKey != filterKey {
		metrics.RecommendationCache.WithLabelValues("get", "mismatch").Inc()
		m.logger.Warn("cache entry belongs to a different key, recomputing", map[string]interface{}{
			"userId":      userID,
			"entryUserId": entry.UserID,
		})
		return nil, false
	}
	if !entry.ValidAt(m.now()) {
		metrics.RecommendationCache.WithLabelValues("get", "expired").Inc()
		return nil, false
	}
	metrics.RecommendationCache.WithLabelValues("get", "hit").Inc()
	return entry, true
}

// Put replaces the user's entry. ttl <= 0 selects the manager default.
// The entry is returned even when the write fails.
func (m *Manager) Put(ctx context.Context, userID, filterKey string, recs []models.RecommendedScheme, ttl time.Duration) (*models.CacheEntry, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	now := m.now()
	if recs == nil {
		recs = []models.RecommendedScheme{}
	}
	entry := &models.CacheEntry{
		ID:              uuid.NewString(),
		UserID:          userID,
		FilterKey:       filterKey,
		Recommendations: recs,
		GeneratedAt:     now.UTC(),
		ExpiresAt:       now.Add(ttl).UTC(),
	}

	if err := m.store.Set(ctx, Key(userID, filterKey), entry, ttl); err != nil {
		metrics.RecommendationCache.WithLabelValues("put", "error").Inc()
		stdErr := commonerrors.NewCacheUnavailableError("put", err)
		m.logger.Warn("cache write failed", map[string]interface{}{
			"userId": userID,
			"error":  stdErr.Details,
		})
		return entry, stdErr
	}
	metrics.RecommendationCache.WithLabelValues("put", "ok").Inc()
	return entry, nil
}

// Invalidate drops every cached list for the user.
func (m *Manager) Invalidate(ctx context.Context, userID string) error {
	if err := m.store.DeleteUser(ctx, userID); err != nil {
		metrics.RecommendationCache.WithLabelValues("invalidate", "error").Inc()
		return commonerrors.NewCacheUnavailableError("invalidate", err)
	}
	metrics.RecommendationCache.WithLabelValues("invalidate", "ok").Inc()
	return nil
}
