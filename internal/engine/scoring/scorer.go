// Package scoring combines eligibility, benefit, deadline, popularity and
// profile completeness into a single relevance score.
package scoring

import (
	"fmt"
	"math"
	"time"

	"welfare-recommender/internal/models"
)

const (
	NeutralBenefitScore = 50.0
	urgentDays          = 7
	distantDays         = 90
)

// Weights of each component in the final score. They must sum to 1.
type Weights struct {
	Eligibility  float64
	Benefit      float64
	Deadline     float64
	Popularity   float64
	Completeness float64
}

func DefaultWeights() Weights {
	return Weights{
		Eligibility:  0.50,
		Benefit:      0.20,
		Deadline:     0.15,
		Popularity:   0.10,
		Completeness: 0.05,
	}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"eligibility":  w.Eligibility,
		"benefit":      w.Benefit,
		"deadline":     w.Deadline,
		"popularity":   w.Popularity,
		"completeness": w.Completeness,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative", name)
		}
	}
	sum := w.Eligibility + w.Benefit + w.Deadline + w.Popularity + w.Completeness
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// Batch carries catalog-wide statistics needed for normalisation.
type Batch struct {
	maxAmount float64
	hasAmount bool
}

// NewBatch scans the schemes of one scoring pass.
func NewBatch(schemes []models.Scheme) Batch {
	var b Batch
	for _, s := range schemes {
		if s.Benefit.Amount == nil {
			continue
		}
		amt := *s.Benefit.Amount
		if !b.hasAmount || amt > b.maxAmount {
			b.maxAmount = amt
		}
		b.hasAmount = true
	}
	return b
}

// Score is the final relevance value and the components it was built from.
type Score struct {
	Final          float64
	Breakdown      models.ScoreBreakdown
	DaysToDeadline *int
}

type Scorer struct {
	weights Weights
	now     func() time.Time
}

// NewScorer returns a scorer. A nil clock defaults to time.Now.
func NewScorer(weights Weights, now func() time.Time) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Scorer{weights: weights, now: now}, nil
}

func (s *Scorer) Score(scheme models.Scheme, result models.EligibilityResult, profile *models.Profile, batch Batch) Score {
	days := DaysUntil(scheme.Timeline, s.now())

	var completeness float64
	if profile != nil {
		completeness = profile.Completeness
	}

	b := models.ScoreBreakdown{
		Eligibility:  clamp(result.MatchScore),
		Benefit:      clamp(BenefitScore(scheme.Benefit.Amount, batch)),
		Deadline:     clamp(DeadlineScore(scheme.Timeline, days)),
		Popularity:   clamp(PopularityScore(scheme.SuccessRate)),
		Completeness: clamp(CompletenessBonus(completeness)),
	}

	final := s.weights.Eligibility*b.Eligibility +
		s.weights.Benefit*b.Benefit +
		s.weights.Deadline*b.Deadline +
		s.weights.Popularity*b.Popularity +
		s.weights.Completeness*b.Completeness

	return Score{
		Final:          clamp(round2(final)),
		Breakdown:      roundBreakdown(b),
		DaysToDeadline: days,
	}
}

// BenefitScore scales an amount against the largest amount in the batch as
// 100*amount/max. The scale is anchored at zero, not at the batch minimum, so
// the smallest cash benefit keeps a score proportional to its size instead of
// dropping to 0. Schemes without an amount are non-financial and get the
// neutral score.
func BenefitScore(amount *float64, batch Batch) float64 {
	if amount == nil {
		return NeutralBenefitScore
	}
	if !batch.hasAmount || batch.maxAmount <= 0 {
		return 0
	}
	return 100 * *amount / batch.maxAmount
}

// DaysUntil returns whole days (rounded up) until the scheme closes, or nil
// when the scheme is ongoing or has no end date.
func DaysUntil(t models.Timeline, now time.Time) *int {
	if t.IsOngoing || t.EndDate == nil {
		return nil
	}
	d := int(math.Ceil(t.EndDate.Sub(now).Hours() / 24))
	return &d
}

// DeadlineScore is 100 within a week of closing, 0 from 90 days out, linear
// in between. Ongoing, open-ended and already closed schemes score 0.
func DeadlineScore(t models.Timeline, days *int) float64 {
	if t.IsOngoing || days == nil || *days < 0 {
		return 0
	}
	d := *days
	switch {
	case d <= urgentDays:
		return 100
	case d >= distantDays:
		return 0
	default:
		return 100 * float64(distantDays-d) / float64(distantDays-urgentDays)
	}
}

func PopularityScore(successRate *float64) float64 {
	if successRate == nil {
		return 0
	}
	return *successRate * 100
}

// CompletenessBonus maps profile completeness (0-100) onto 0-10.
func CompletenessBonus(completeness float64) float64 {
	return completeness / 10
}

func roundBreakdown(b models.ScoreBreakdown) models.ScoreBreakdown {
	return models.ScoreBreakdown{
		Eligibility:  round2(b.Eligibility),
		Benefit:      round2(b.Benefit),
		Deadline:     round2(b.Deadline),
		Popularity:   round2(b.Popularity),
		Completeness: round2(b.Completeness),
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func clamp(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 100:
		return 100
	default:
		return x
	}
}
