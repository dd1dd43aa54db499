// Package ranking orders scored schemes and assigns status and priority bands.
package ranking

import (
	"fmt"
	"sort"

	"welfare-recommender/internal/engine/scoring"
	"welfare-recommender/internal/models"
)

// Thresholds are the band boundaries, all on a 0-100 scale.
type Thresholds struct {
	PartialMatch   float64
	HighPriority   float64
	MediumPriority float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{PartialMatch: 40, HighPriority: 70, MediumPriority: 40}
}

func (t Thresholds) Validate() error {
	if t.PartialMatch < 0 || t.PartialMatch > 100 {
		return fmt.Errorf("partial match threshold %.2f outside [0,100]", t.PartialMatch)
	}
	if t.MediumPriority < 0 || t.MediumPriority > t.HighPriority || t.HighPriority > 100 {
		return fmt.Errorf("priority thresholds must satisfy 0 <= medium (%.2f) <= high (%.2f) <= 100",
			t.MediumPriority, t.HighPriority)
	}
	return nil
}

// Candidate is one scheme after assessment and scoring.
type Candidate struct {
	Scheme models.Scheme
	Result models.EligibilityResult
	Score  scoring.Score
}

// Options trims a ranked list. Limit <= 0 means no limit.
type Options struct {
	Limit         int
	MinMatchScore *float64
}

type Ranker struct {
	thresholds Thresholds
}

func NewRanker(t Thresholds) (*Ranker, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Ranker{thresholds: t}, nil
}

// Status derives the eligibility band from the assessor result.
func (r *Ranker) Status(res models.EligibilityResult) models.EligibilityStatus {
	switch {
	case res.Eligible:
		return models.StatusEligible
	case res.MatchScore >= r.thresholds.PartialMatch:
		return models.StatusPartiallyEligible
	default:
		return models.StatusNotEligible
	}
}

func (r *Ranker) Priority(final float64) models.Priority {
	switch {
	case final >= r.thresholds.HighPriority:
		return models.PriorityHigh
	case final >= r.thresholds.MediumPriority:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// Rank builds recommendations from candidates, sorts them and applies opts.
func (r *Ranker) Rank(candidates []Candidate, opts Options) []models.RecommendedScheme {
	out := make([]models.RecommendedScheme, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, r.recommend(c))
	}
	Sort(out)
	return Apply(out, opts)
}

func (r *Ranker) recommend(c Candidate) models.RecommendedScheme {
	popularity := c.Score.Breakdown.Popularity
	return models.RecommendedScheme{
		Scheme:            models.NewSchemeRef(c.Scheme),
		MatchScore:        c.Result.MatchScore,
		FinalScore:        c.Score.Final,
		Eligible:          c.Result.Eligible,
		EligibilityStatus: r.Status(c.Result),
		Priority:          r.Priority(c.Score.Final),
		Reasoning: models.Reasoning{
			MatchedAttributes:   c.Result.MatchedCriteria,
			UnmatchedAttributes: c.Result.UnmatchedCriteria,
			MissingAttributes:   c.Result.MissingProfileData,
			BenefitValue:        c.Scheme.Benefit.Amount,
			DaysToDeadline:      c.Score.DaysToDeadline,
			Popularity:          popularity,
			Breakdown:           c.Score.Breakdown,
		},
	}
}

// Sort orders by final score descending, then scheme popularity descending,
// then scheme id ascending.
func Sort(list []models.RecommendedScheme) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.Scheme.Popularity != b.Scheme.Popularity {
			return a.Scheme.Popularity > b.Scheme.Popularity
		}
		return a.Scheme.ID < b.Scheme.ID
	})
}

// Apply filters by minimum match score and truncates an already sorted list.
// The input is never modified.
func Apply(list []models.RecommendedScheme, opts Options) []models.RecommendedScheme {
	out := make([]models.RecommendedScheme, 0, len(list))
	for _, rec := range list {
		if opts.MinMatchScore != nil && rec.MatchScore < *opts.MinMatchScore {
			continue
		}
		out = append(out, rec)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}
