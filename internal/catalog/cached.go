package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/common/metrics"
	"welfare-recommender/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultCacheTTL = 15 * time.Minute
	cacheKeyPrefix  = "catalog:schemes:"
)

// Source is the catalog contract shared by every adapter.
type Source interface {
	GetSchemes(ctx context.Context, filters models.SchemeFilters) ([]models.Scheme, error)
	GetScheme(ctx context.Context, schemeID string) (*models.Scheme, error)
}

// CachedCatalog is a redis read-through cache in front of a Source for
// scheme lists. Single-scheme lookups always go to the source. Cache
// failures fall through to the source.
type CachedCatalog struct {
	source Source
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

func NewCachedCatalog(source Source, client redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedCatalog{
		source: source,
		redis:  client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "catalog-cache"}),
		now:    time.Now,
	}
}

func cacheKey(filters models.SchemeFilters) string {
	if filters.IsZero() {
		return cacheKeyPrefix + "all"
	}
	return cacheKeyPrefix + filters.Key()
}

func (c *CachedCatalog) GetSchemes(ctx context.Context, filters models.SchemeFilters) ([]models.Scheme, error) {
	key := cacheKey(filters)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var schemes []models.Scheme
		if jsonErr := json.Unmarshal(data, &schemes); jsonErr == nil {
			metrics.CatalogCache.WithLabelValues("hit").Inc()
			return c.stillAvailable(schemes), nil
		}
		metrics.CatalogCache.WithLabelValues("error").Inc()
		c.logger.Warn("discarding undecodable catalog cache entry", map[string]interface{}{"key": key})
	case errors.Is(err, redis.Nil):
		metrics.CatalogCache.WithLabelValues("miss").Inc()
	default:
		metrics.CatalogCache.WithLabelValues("error").Inc()
		c.logger.Warn("catalog cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	schemes, err := c.source.GetSchemes(ctx, filters)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(schemes); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}
	return schemes, nil
}

// stillAvailable drops schemes that closed after the list was cached.
func (c *CachedCatalog) stillAvailable(schemes []models.Scheme) []models.Scheme {
	now := c.now()
	out := schemes[:0]
	for _, s := range schemes {
		if available(s, now) {
			out = append(out, s)
		}
	}
	return out
}

func (c *CachedCatalog) GetScheme(ctx context.Context, schemeID string) (*models.Scheme, error) {
	return c.source.GetScheme(ctx, schemeID)
}
