package engine

import (
	"context"
	"errors"
	"fmt"

	commonerrors "welfare-recommender/internal/common/errors"
	"welfare-recommender/internal/common/metrics"
	"welfare-recommender/internal/engine/eligibility"
	"welfare-recommender/internal/engine/ranking"
	"welfare-recommender/internal/engine/scoring"
	"welfare-recommender/internal/models"

	"golang.org/x/sync/errgroup"
)

const (
	depProfile = "profile"
	depCatalog = "catalog"
)

// fetchStep is one collaborator call made under the fetch timeout.
type fetchStep struct {
	dependency string
	key        string
	run        func(ctx context.Context) error
}

// shared collapses concurrent computations of the same list. The flight key
// carries the invalidation generation so that a refresh never joins a stale
// computation. When the leading caller is cancelled, a follower whose own
// context is still live recomputes once.
func (e *Engine) shared(ctx context.Context, userID string, filters models.SchemeFilters) ([]models.RecommendedScheme, error) {
	for attempt := 0; ; attempt++ {
		gen := e.generation(userID)
		key := fmt.Sprintf("%s|%s|%d", userID, filters.Key(), gen)

		ch := e.flight.DoChan(key, func() (interface{}, error) {
			return e.compute(ctx, userID, filters, gen)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				if attempt == 0 && res.Shared && ctx.Err() == nil && isCancellation(res.Err) {
					continue
				}
				return nil, res.Err
			}
			return res.Val.([]models.RecommendedScheme), nil
		}
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// compute fetches, scores and ranks the full list and writes it to the cache
// when no invalidation intervened.
func (e *Engine) compute(ctx context.Context, userID string, filters models.SchemeFilters, gen uint64) ([]models.RecommendedScheme, error) {
	var (
		profile *models.Profile
		schemes []models.Scheme
	)

	err := e.fetch(ctx,
		fetchStep{dependency: depProfile, key: userID, run: func(ctx context.Context) error {
			p, err := e.profiles.GetProfile(ctx, userID)
			if err == nil && p == nil {
				err = models.ErrProfileNotFound
			}
			profile = p
			return err
		}},
		fetchStep{dependency: depCatalog, key: filters.Key(), run: func(ctx context.Context) error {
			s, err := e.schemes.GetSchemes(ctx, filters)
			schemes = s
			return err
		}},
	)
	if err != nil {
		return nil, err
	}

	recs, err := e.score(ctx, profile, schemes)
	if err != nil {
		return nil, err
	}

	e.store(ctx, userID, filters, gen, recs)

	e.logger.Info("recommendations computed", map[string]interface{}{
		"userId":          userID,
		"filters":         filters.Key(),
		"schemes":         len(schemes),
		"recommendations": len(recs),
	})
	return recs, nil
}

// fetch runs the steps concurrently under the fetch timeout and maps their
// failures onto engine errors. The first failure cancels the others.
func (e *Engine) fetch(ctx context.Context, steps ...fetchStep) error {
	bounded, cancel := context.WithTimeout(ctx, e.settings.FetchTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(bounded)
	for _, step := range steps {
		step := step
		g.Go(func() error {
			if err := step.run(gctx); err != nil {
				return e.classify(ctx, bounded, step, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) classify(parent, bounded context.Context, step fetchStep, err error) error {
	switch {
	case errors.Is(err, models.ErrProfileNotFound):
		return commonerrors.NewProfileNotFoundError(step.key, err)
	case errors.Is(err, models.ErrSchemeNotFound):
		return commonerrors.NewSchemeNotFoundError(step.key, err)
	case parent.Err() != nil:
		return fmt.Errorf("%s fetch aborted: %w", step.dependency, parent.Err())
	case errors.Is(err, models.ErrDependencyTimeout) || errors.Is(bounded.Err(), context.DeadlineExceeded):
		metrics.DependencyTimeouts.WithLabelValues(step.dependency).Inc()
		e.logger.Warn("dependency timed out", map[string]interface{}{
			"dependency": step.dependency,
			"timeout":    e.settings.FetchTimeout.String(),
		})
		return commonerrors.NewDependencyTimeoutError(step.dependency,
			fmt.Errorf("%w: %v", models.ErrDependencyTimeout, err))
	}

	if stdErr, ok := commonerrors.AsStandardError(err); ok {
		return stdErr
	}
	if step.dependency == depProfile {
		return commonerrors.NewProfileFetchFailedError(depProfile, err)
	}
	return commonerrors.NewCatalogQueryFailedError(depCatalog, err)
}

// score assesses every scheme in parallel, each goroutine writing only its
// own slot, then ranks the complete set.
func (e *Engine) score(ctx context.Context, profile *models.Profile, schemes []models.Scheme) ([]models.RecommendedScheme, error) {
	batch := scoring.NewBatch(schemes)
	candidates := make([]ranking.Candidate, len(schemes))
	assessments := make([]eligibility.Assessment, len(schemes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.settings.ScoringConcurrency)
	for i := range schemes {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := eligibility.AssessDetailed(schemes[i], profile)
			assessments[i] = a
			candidates[i] = ranking.Candidate{
				Scheme: schemes[i],
				Result: a.Result,
				Score:  e.scorer.Score(schemes[i], a.Result, profile, batch),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metrics.SchemesScored.Add(float64(len(schemes)))
	for _, a := range assessments {
		e.reportMalformed(a)
	}

	return e.ranker.Rank(candidates, ranking.Options{}), nil
}

func (e *Engine) reportMalformed(a eligibility.Assessment) {
	for _, ev := range a.Evaluations {
		if !ev.Malformed {
			continue
		}
		metrics.MalformedRules.Inc()
		stdErr := commonerrors.NewMalformedRuleError(a.Result.SchemeID, ev.Rule.Field, string(ev.Rule.Operator))
		e.logger.Warn("malformed eligibility rule", map[string]interface{}{
			"code":    string(stdErr.Code),
			"details": stdErr.Details,
			"reason":  ev.Reason,
		})
	}
}
