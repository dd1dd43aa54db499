// Package engine answers recommendation and explanation requests for a
// citizen by combining the profile, the scheme catalog, the scoring pipeline
// and the recommendation cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	commonerrors "welfare-recommender/internal/common/errors"
	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/common/metrics"
	"welfare-recommender/internal/engine/cache"
	"welfare-recommender/internal/engine/explanation"
	"welfare-recommender/internal/engine/ranking"
	"welfare-recommender/internal/engine/scoring"
	"welfare-recommender/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ProfileProvider returns models.ErrProfileNotFound for unknown users.
type ProfileProvider interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// SchemeProvider returns active schemes. GetScheme returns
// models.ErrSchemeNotFound for unknown ids.
type SchemeProvider interface {
	GetSchemes(ctx context.Context, filters models.SchemeFilters) ([]models.Scheme, error)
	GetScheme(ctx context.Context, schemeID string) (*models.Scheme, error)
}

// Publisher receives an event after every forced refresh.
type Publisher interface {
	PublishRefreshed(ctx context.Context, event models.RecommendationsRefreshed) error
}

// Dependencies are the collaborators of an Engine. Publisher is optional.
type Dependencies struct {
	Profiles  ProfileProvider
	Schemes   SchemeProvider
	Cache     *cache.Manager
	Publisher Publisher
	Logger    logger.Logger
	Now       func() time.Time
}

const stripeCount = 256

// stripe serialises invalidation against cache writes for the users hashed
// to it. gen increases on every invalidation.
type stripe struct {
	mu  sync.Mutex
	gen uint64
}

type Engine struct {
	profiles  ProfileProvider
	schemes   SchemeProvider
	cache     *cache.Manager
	publisher Publisher
	logger    logger.Logger
	now       func() time.Time

	settings Settings
	scorer   *scoring.Scorer
	ranker   *ranking.Ranker

	flight  singleflight.Group
	stripes [stripeCount]stripe
}

func New(deps Dependencies, settings Settings) (*Engine, error) {
	if deps.Profiles == nil || deps.Schemes == nil || deps.Cache == nil {
		return nil, errors.New("engine requires profile provider, scheme provider and cache")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	settings = settings.normalize()

	scorer, err := scoring.NewScorer(settings.Weights, deps.Now)
	if err != nil {
		return nil, fmt.Errorf("invalid scoring weights: %w", err)
	}
	ranker, err := ranking.NewRanker(settings.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	return &Engine{
		profiles:  deps.Profiles,
		schemes:   deps.Schemes,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		logger:    deps.Logger.WithFields(map[string]interface{}{"component": "recommendation-engine"}),
		now:       deps.Now,
		settings:  settings,
		scorer:    scorer,
		ranker:    ranker,
	}, nil
}

// GetRecommendations returns the ranked list for the user. A valid cache
// entry for the same filter set is served without touching the profile or
// catalog. Limit and MinMatchScore are applied to the full cached list.
func (e *Engine) GetRecommendations(ctx context.Context, userID string, opts models.RecommendationOptions) (recs []models.RecommendedScheme, err error) {
	start := time.Now()
	defer func() { observe("get", start, err) }()

	if userID == "" {
		return nil, commonerrors.NewInvalidInputError("userId is required")
	}

	filters := opts.Filters()
	view := ranking.Options{Limit: e.settings.limit(opts.Limit), MinMatchScore: opts.MinMatchScore}

	if entry, ok := e.cache.Get(ctx, userID, filters.Key()); ok {
		return ranking.Apply(entry.Recommendations, view), nil
	}

	full, err := e.shared(ctx, userID, filters)
	if err != nil {
		return nil, err
	}
	return ranking.Apply(full, view), nil
}

// ExplainRecommendation re-assesses one scheme for the user. It never reads
// or writes the recommendation cache.
func (e *Engine) ExplainRecommendation(ctx context.Context, userID, schemeID, language string) (exp *models.RecommendationExplanation, err error) {
	start := time.Now()
	defer func() { observe("explain", start, err) }()

	if userID == "" || schemeID == "" {
		return nil, commonerrors.NewInvalidInputError("userId and schemeId are required")
	}

	var (
		profile *models.Profile
		scheme  *models.Scheme
	)
	err = e.fetch(ctx,
		fetchStep{dependency: depProfile, key: userID, run: func(ctx context.Context) error {
			p, err := e.profiles.GetProfile(ctx, userID)
			if err == nil && p == nil {
				err = models.ErrProfileNotFound
			}
			profile = p
			return err
		}},
		fetchStep{dependency: depCatalog, key: schemeID, run: func(ctx context.Context) error {
			s, err := e.schemes.GetScheme(ctx, schemeID)
			if err == nil && s == nil {
				err = models.ErrSchemeNotFound
			}
			scheme = s
			return err
		}},
	)
	if err != nil {
		return nil, err
	}

	out := explanation.Explain(*scheme, profile, language)
	out.UserID = userID
	return &out, nil
}

// RefreshRecommendations invalidates the user's cached lists, recomputes the
// unfiltered list, stores it and returns its default view. Computations that
// started before the refresh never overwrite its result. It fails with
// CACHE_UNAVAILABLE when the old lists cannot be dropped.
func (e *Engine) RefreshRecommendations(ctx context.Context, userID string) (recs []models.RecommendedScheme, err error) {
	start := time.Now()
	defer func() { observe("refresh", start, err) }()

	if userID == "" {
		return nil, commonerrors.NewInvalidInputError("userId is required")
	}

	// Filtered lists are only removed by invalidation, so a refresh that
	// cannot invalidate fails rather than leave them behind.
	if err := e.invalidate(ctx, userID); err != nil {
		e.logger.Warn("cache invalidation failed during refresh", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil, err
	}

	full, err := e.shared(ctx, userID, models.SchemeFilters{})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, userID, full)
	return ranking.Apply(full, ranking.Options{Limit: e.settings.DefaultLimit}), nil
}

// Invalidate drops every cached list for the user. Profile stores call it
// after a profile update.
func (e *Engine) Invalidate(ctx context.Context, userID string) (err error) {
	start := time.Now()
	defer func() { observe("invalidate", start, err) }()

	if userID == "" {
		return commonerrors.NewInvalidInputError("userId is required")
	}
	return e.invalidate(ctx, userID)
}

func (e *Engine) invalidate(ctx context.Context, userID string) error {
	st := e.stripeFor(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.gen++
	return e.cache.Invalidate(ctx, userID)
}

func (e *Engine) stripeFor(userID string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &e.stripes[h.Sum32()%stripeCount]
}

func (e *Engine) generation(userID string) uint64 {
	st := e.stripeFor(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.gen
}

// store writes the list only if no invalidation happened since gen was read.
func (e *Engine) store(ctx context.Context, userID string, filters models.SchemeFilters, gen uint64, recs []models.RecommendedScheme) {
	st := e.stripeFor(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.gen != gen {
		e.logger.Debug("skipping cache write for superseded computation", map[string]interface{}{
			"userId": userID,
		})
		return
	}
	// Put logs its own failures; the list is still returned to the caller.
	_, _ = e.cache.Put(ctx, userID, filters.Key(), recs, e.settings.CacheTTL)
}

func (e *Engine) publish(ctx context.Context, userID string, recs []models.RecommendedScheme) {
	if e.publisher == nil {
		return
	}

	top := make([]string, 0, e.settings.NotifyTopN)
	for _, r := range recs {
		if len(top) == e.settings.NotifyTopN {
			break
		}
		if r.Priority == models.PriorityHigh {
			top = append(top, r.Scheme.ID)
		}
	}

	event := models.RecommendationsRefreshed{
		EventID:     uuid.NewString(),
		EventType:   models.EventRecommendationsRefreshed,
		UserID:      userID,
		GeneratedAt: e.now().UTC(),
		Total:       len(recs),
		TopSchemes:  top,
	}
	if err := e.publisher.PublishRefreshed(ctx, event); err != nil {
		e.logger.Warn("failed to publish refresh event", map[string]interface{}{
			"userId":  userID,
			"eventId": event.EventID,
			"error":   err.Error(),
		})
	}
}

func observe(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if stdErr, ok := commonerrors.AsStandardError(err); ok {
			outcome = string(stdErr.Code)
		}
	}
	metrics.RecommendationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}
