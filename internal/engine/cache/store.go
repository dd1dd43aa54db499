// Package cache keeps per-user ranked recommendation lists for a bounded window.
package cache

import (
	"context"
	"errors"
	"net/url"
	"time"

	"welfare-recommender/internal/models"
)

// ErrMiss is returned by a Store when no entry exists for the key.
var ErrMiss = errors.New("cache miss")

const (
	keyPrefix   = "recommendations:user:"
	indexPrefix = "recommendations:index:"
)

// Store is the backing key-value store. Set must replace any prior value for
// the key atomically; DeleteUser removes every key written for the user.
type Store interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Set(ctx context.Context, key string, entry *models.CacheEntry, ttl time.Duration) error
	DeleteUser(ctx context.Context, userID string) error
}

// Key is the storage key for a user's list under one filter set. The user id
// is path-escaped so it can never contain the "|" filter separator.
func Key(userID, filterKey string) string {
	if filterKey == "" {
		return keyPrefix + url.PathEscape(userID)
	}
	return keyPrefix + url.PathEscape(userID) + "|" + filterKey
}

func indexKey(userID string) string {
	return indexPrefix + url.PathEscape(userID)
}

func cloneEntry(e *models.CacheEntry) *models.CacheEntry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Recommendations != nil {
		cp.Recommendations = make([]models.RecommendedScheme, len(e.Recommendations))
		copy(cp.Recommendations, e.Recommendations)
	}
	return &cp
}
