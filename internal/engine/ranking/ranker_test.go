package ranking

import (
	"math/rand"
	"testing"

	"welfare-recommender/internal/engine/scoring"
	"welfare-recommender/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id string, final, match, popularity float64, eligible bool) Candidate {
	return Candidate{
		Scheme: models.Scheme{ID: id, Name: id, Popularity: popularity},
		Result: models.EligibilityResult{SchemeID: id, MatchScore: match, Eligible: eligible},
		Score:  scoring.Score{Final: final},
	}
}

func newTestRanker(t *testing.T) *Ranker {
	r, err := NewRanker(DefaultThresholds())
	require.NoError(t, err)
	return r
}

func ids(list []models.RecommendedScheme) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.Scheme.ID
	}
	return out
}

func TestRank_Ordering(t *testing.T) {
	r := newTestRanker(t)

	got := r.Rank([]Candidate{
		candidate("c", 55, 60, 10, false),
		candidate("a", 80, 100, 10, true),
		candidate("b", 55, 60, 90, false),
		candidate("d", 55, 60, 10, false),
	}, Options{})

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(got))
}

func TestRank_EqualScoreHigherPopularityFirst(t *testing.T) {
	r := newTestRanker(t)

	got := r.Rank([]Candidate{
		candidate("ujjwala", 62.5, 80, 1200, false),
		candidate("awas", 62.5, 80, 5400, false),
	}, Options{})

	assert.Equal(t, []string{"awas", "ujjwala"}, ids(got))
}

func TestRank_FiltersAndLimits(t *testing.T) {
	r := newTestRanker(t)
	min := 50.0

	got := r.Rank([]Candidate{
		candidate("a", 90, 100, 0, true),
		candidate("b", 70, 45, 0, false),
		candidate("c", 60, 75, 0, false),
		candidate("d", 50, 80, 0, false),
	}, Options{Limit: 2, MinMatchScore: &min})

	assert.Equal(t, []string{"a", "c"}, ids(got))
}

func TestStatusAndPriorityBands(t *testing.T) {
	r := newTestRanker(t)

	tests := []struct {
		name         string
		c            Candidate
		wantStatus   models.EligibilityStatus
		wantPriority models.Priority
	}{
		{"fully eligible high", candidate("x", 70, 100, 0, true), models.StatusEligible, models.PriorityHigh},
		{"score 100 with gaps is partial", candidate("x", 69.99, 100, 0, false), models.StatusPartiallyEligible, models.PriorityMedium},
		{"partial boundary", candidate("x", 40, 40, 0, false), models.StatusPartiallyEligible, models.PriorityMedium},
		{"below partial", candidate("x", 39.99, 39.99, 0, false), models.StatusNotEligible, models.PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Rank([]Candidate{tt.c}, Options{})
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantStatus, got[0].EligibilityStatus)
			assert.Equal(t, tt.wantPriority, got[0].Priority)
		})
	}
}

func TestPriority_MonotonicUnderCustomThresholds(t *testing.T) {
	r, err := NewRanker(Thresholds{PartialMatch: 55, HighPriority: 85, MediumPriority: 30})
	require.NoError(t, err)

	rank := map[models.Priority]int{models.PriorityLow: 0, models.PriorityMedium: 1, models.PriorityHigh: 2}
	prev := -1
	for s := 0.0; s <= 100; s += 0.5 {
		p := rank[r.Priority(s)]
		assert.GreaterOrEqual(t, p, prev, "score %.1f", s)
		prev = p
	}
	assert.Equal(t, models.StatusNotEligible, r.Status(models.EligibilityResult{MatchScore: 54}))
	assert.Equal(t, models.StatusPartiallyEligible, r.Status(models.EligibilityResult{MatchScore: 55}))
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{PartialMatch: 40, HighPriority: 30, MediumPriority: 60}.Validate())
	assert.Error(t, Thresholds{PartialMatch: 140, HighPriority: 70, MediumPriority: 40}.Validate())
	_, err := NewRanker(Thresholds{PartialMatch: -1})
	assert.Error(t, err)
}

func TestRank_MonotonicProperty(t *testing.T) {
	r := newTestRanker(t)
	rng := rand.New(rand.NewSource(42))

	var cs []Candidate
	for i := 0; i < 200; i++ {
		cs = append(cs, candidate(
			string(rune('a'+i%26))+string(rune('a'+i/26)),
			float64(rng.Intn(20))*5,
			float64(rng.Intn(101)),
			float64(rng.Intn(5)),
			false,
		))
	}

	got := r.Rank(cs, Options{})
	require.Len(t, got, len(cs))
	for i := 1; i < len(got); i++ {
		a, b := got[i-1], got[i]
		assert.GreaterOrEqual(t, a.FinalScore, b.FinalScore)
		if a.FinalScore == b.FinalScore {
			assert.GreaterOrEqual(t, a.Scheme.Popularity, b.Scheme.Popularity)
			if a.Scheme.Popularity == b.Scheme.Popularity {
				assert.Less(t, a.Scheme.ID, b.Scheme.ID)
			}
		}
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	list := []models.RecommendedScheme{
		{Scheme: models.SchemeRef{ID: "a"}, MatchScore: 90},
		{Scheme: models.SchemeRef{ID: "b"}, MatchScore: 10},
	}
	min := 50.0

	got := Apply(list, Options{MinMatchScore: &min})

	assert.Equal(t, []string{"a"}, ids(got))
	assert.Len(t, list, 2)
}
