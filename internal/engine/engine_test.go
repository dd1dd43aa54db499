package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	commonerrors "welfare-recommender/internal/common/errors"
	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/engine/cache"
	"welfare-recommender/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	calls    atomic.Int32
	err      error

	// When set, the first call signals started and waits for release or
	// context cancellation.
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	n := f.calls.Add(1)
	if f.release != nil && n == 1 {
		f.once.Do(func() { close(f.started) })
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, models.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) set(p *models.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.UserID] = p
}

func (f *fakeProfiles) gate() {
	f.started = make(chan struct{})
	f.release = make(chan struct{})
}

type fakeSchemes struct {
	schemes []models.Scheme
	calls   atomic.Int32
	delay   time.Duration
}

func (f *fakeSchemes) GetSchemes(ctx context.Context, filters models.SchemeFilters) ([]models.Scheme, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([]models.Scheme, 0, len(f.schemes))
	for _, s := range f.schemes {
		if filters.Category != "" && s.Category != filters.Category {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSchemes) GetScheme(_ context.Context, schemeID string) (*models.Scheme, error) {
	for _, s := range f.schemes {
		if s.ID == schemeID {
			cp := s
			return &cp, nil
		}
	}
	return nil, models.ErrSchemeNotFound
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RecommendationsRefreshed
	err    error
}

func (p *recordingPublisher) PublishRefreshed(_ context.Context, event models.RecommendationsRefreshed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func amount(v float64) *float64 { return &v }

func deadline(days int) *time.Time {
	t := testNow.Add(time.Duration(days) * 24 * time.Hour)
	return &t
}

func testSchemes() []models.Scheme {
	return []models.Scheme{
		{
			ID: "farmer-income", Name: "Farmer Income Support", Category: "agriculture", Active: true,
			Rules: []models.EligibilityRule{
				{Field: "occupation", Operator: models.OpEq, Value: models.Text("farmer"), Weight: 2},
				{Field: "landHolding", Operator: models.OpLte, Value: models.Number(2), Weight: 1},
			},
			Benefit:    models.Benefit{Type: "cash", Amount: amount(6000)},
			Timeline:   models.Timeline{EndDate: deadline(5)},
			Popularity: 80,
		},
		{
			ID: "girl-scholarship", Name: "Girl Child Scholarship", Category: "education", Active: true,
			Rules: []models.EligibilityRule{
				{Field: "gender", Operator: models.OpEq, Value: models.Text("female"), Weight: 2},
				{Field: "age", Operator: models.OpLte, Value: models.Number(25), Weight: 1},
			},
			Benefit:    models.Benefit{Type: "cash", Amount: amount(12000)},
			Timeline:   models.Timeline{IsOngoing: true},
			Popularity: 60,
		},
		{
			ID: "senior-pension", Name: "Senior Citizen Pension", Category: "social", Active: true,
			Rules: []models.EligibilityRule{
				{Field: "age", Operator: models.OpGte, Value: models.Number(60), Weight: 1},
			},
			Benefit:    models.Benefit{Type: "pension"},
			Timeline:   models.Timeline{EndDate: deadline(120)},
			Popularity: 40,
		},
	}
}

func farmerProfile() *models.Profile {
	return &models.Profile{
		UserID: "citizen-1",
		Attributes: models.Attributes{
			"occupation":  models.Text("farmer"),
			"landHolding": models.Number(1.5),
			"age":         models.Number(45),
			"gender":      models.Text("male"),
		},
		Completeness: 80,
	}
}

type fixture struct {
	engine    *Engine
	cache     *cache.Manager
	profiles  *fakeProfiles
	schemes   *fakeSchemes
	publisher *recordingPublisher
	redis     *miniredis.Miniredis
}

func newFixture(t *testing.T, mutate func(*Settings)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logger.NewTestLogger(t)
	now := func() time.Time { return testNow }
	manager := cache.NewManager(cache.NewRedisStore(client), time.Hour, now, log)

	f := &fixture{
		cache:     manager,
		profiles:  &fakeProfiles{profiles: map[string]*models.Profile{"citizen-1": farmerProfile()}},
		schemes:   &fakeSchemes{schemes: testSchemes()},
		publisher: &recordingPublisher{},
		redis:     mr,
	}

	settings := DefaultSettings()
	settings.FetchTimeout = time.Second
	if mutate != nil {
		mutate(&settings)
	}

	e, err := New(Dependencies{
		Profiles:  f.profiles,
		Schemes:   f.schemes,
		Cache:     manager,
		Publisher: f.publisher,
		Logger:    log,
		Now:       now,
	}, settings)
	require.NoError(t, err)
	f.engine = e
	return f
}

func ids(recs []models.RecommendedScheme) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Scheme.ID)
	}
	return out
}

func requireCode(t *testing.T, err error, code commonerrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	stdErr, ok := commonerrors.AsStandardError(err)
	require.True(t, ok, "expected StandardError, got %v", err)
	assert.Equal(t, code, stdErr.Code)
}

// ==========================
// Construction
// ==========================

func TestNew_Validation(t *testing.T) {
	_, err := New(Dependencies{}, DefaultSettings())
	assert.Error(t, err)

	f := newFixture(t, nil)
	bad := DefaultSettings()
	bad.Weights.Eligibility = 0.9
	_, err = New(Dependencies{Profiles: f.profiles, Schemes: f.schemes, Cache: f.cache}, bad)
	assert.Error(t, err)
}

func TestSettings_Limit(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, DefaultLimit, s.limit(0))
	assert.Equal(t, 5, s.limit(5))
	assert.Equal(t, DefaultMaxLimit, s.limit(1000))
}

// ==========================
// GetRecommendations
// ==========================

func TestGetRecommendations_RanksEveryActiveScheme(t *testing.T) {
	f := newFixture(t, nil)

	recs, err := f.engine.GetRecommendations(context.Background(), "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "farmer-income", recs[0].Scheme.ID)
	assert.True(t, recs[0].Eligible)
	assert.Equal(t, models.StatusEligible, recs[0].EligibilityStatus)
	assert.Equal(t, models.PriorityHigh, recs[0].Priority)
	assert.Equal(t, 100.0, recs[0].Reasoning.Breakdown.Deadline)

	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].FinalScore, recs[i].FinalScore)
	}
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.FinalScore, 0.0)
		assert.LessOrEqual(t, r.FinalScore, 100.0)
	}
}

func TestGetRecommendations_CacheIdempotence(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)
	second, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	assert.Equal(t, int32(1), f.profiles.calls.Load())
	assert.Equal(t, int32(1), f.schemes.calls.Load())
}

func TestGetRecommendations_LimitAndMinScoreServedFromCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	all, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)

	limited, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, ids(all)[:1], ids(limited))

	minScore := 100.0
	strict, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{MinMatchScore: &minScore})
	require.NoError(t, err)
	for _, r := range strict {
		assert.Equal(t, 100.0, r.MatchScore)
	}

	assert.Equal(t, int32(1), f.schemes.calls.Load())
}

func TestGetRecommendations_FiltersUseSeparateEntries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)

	edu, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{Category: "education"})
	require.NoError(t, err)
	assert.Equal(t, []string{"girl-scholarship"}, ids(edu))
	assert.Equal(t, int32(2), f.schemes.calls.Load())

	_, ok := f.cache.Get(ctx, "citizen-1", models.SchemeFilters{Category: "education"}.Key())
	assert.True(t, ok)
}

func TestGetRecommendations_UserIDWithSeparatorGetsOwnEntry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{Category: "agriculture"})
	require.NoError(t, err)

	_, err = f.engine.GetRecommendations(ctx, "citizen-1|category=agriculture", models.RecommendationOptions{})
	requireCode(t, err, commonerrors.ErrCodeProfileNotFound)
}

func TestGetRecommendations_EmptyCatalog(t *testing.T) {
	f := newFixture(t, nil)
	f.schemes.schemes = nil

	recs, err := f.engine.GetRecommendations(context.Background(), "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestGetRecommendations_Errors(t *testing.T) {
	t.Run("missing user id", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.GetRecommendations(context.Background(), "", models.RecommendationOptions{})
		requireCode(t, err, commonerrors.ErrCodeInvalidInput)
	})

	t.Run("profile not found", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.engine.GetRecommendations(context.Background(), "ghost", models.RecommendationOptions{})
		requireCode(t, err, commonerrors.ErrCodeProfileNotFound)
		assert.ErrorIs(t, err, models.ErrProfileNotFound)

		_, ok := f.cache.Get(context.Background(), "ghost", "")
		assert.False(t, ok)
	})

	t.Run("catalog timeout", func(t *testing.T) {
		f := newFixture(t, func(s *Settings) { s.FetchTimeout = 20 * time.Millisecond })
		f.schemes.delay = time.Second

		_, err := f.engine.GetRecommendations(context.Background(), "citizen-1", models.RecommendationOptions{})
		requireCode(t, err, commonerrors.ErrCodeDependencyTimeout)
		assert.ErrorIs(t, err, models.ErrDependencyTimeout)
	})

	t.Run("profile backend failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.profiles.err = errors.New("connection reset")

		_, err := f.engine.GetRecommendations(context.Background(), "citizen-1", models.RecommendationOptions{})
		requireCode(t, err, commonerrors.ErrCodeProfileFetchFailed)
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		f := newFixture(t, nil)
		f.schemes.delay = time.Second

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		_, isStd := commonerrors.AsStandardError(err)
		assert.False(t, isStd)
	})
}

func TestGetRecommendations_CacheOutageStillServes(t *testing.T) {
	f := newFixture(t, nil)
	f.redis.SetError("READONLY replica")

	recs, err := f.engine.GetRecommendations(context.Background(), "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	_, err = f.engine.GetRecommendations(context.Background(), "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.schemes.calls.Load())
}

func TestGetRecommendations_SingleFlight(t *testing.T) {
	f := newFixture(t, nil)
	f.profiles.gate()

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]models.RecommendedScheme, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.GetRecommendations(context.Background(), "citizen-1", models.RecommendationOptions{})
		}(i)
	}

	<-f.profiles.started
	time.Sleep(50 * time.Millisecond)
	close(f.profiles.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids(results[0]), ids(results[i]))
	}
	assert.Equal(t, int32(1), f.profiles.calls.Load())
}

func TestGetRecommendations_FollowerSurvivesLeaderCancellation(t *testing.T) {
	f := newFixture(t, nil)
	f.profiles.gate()

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := f.engine.GetRecommendations(leaderCtx, "citizen-1", models.RecommendationOptions{})
		leaderErr <- err
	}()
	<-f.profiles.started

	followerDone := make(chan []models.RecommendedScheme, 1)
	go func() {
		recs, err := f.engine.GetRecommendations(context.Background(), "citizen-1", models.RecommendationOptions{})
		assert.NoError(t, err)
		followerDone <- recs
	}()
	time.Sleep(50 * time.Millisecond)
	cancelLeader()

	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	select {
	case recs := <-followerDone:
		assert.Len(t, recs, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not recover from leader cancellation")
	}
}

// ==========================
// Refresh & Invalidate
// ==========================

func TestRefreshRecommendations_RoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	before, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)
	assert.Equal(t, "farmer-income", before[0].Scheme.ID)

	updated := farmerProfile()
	updated.Attributes["occupation"] = models.Text("retired")
	updated.Attributes["age"] = models.Number(65)
	f.profiles.set(updated)

	stale, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)
	assert.Equal(t, ids(before), ids(stale))

	refreshed, err := f.engine.RefreshRecommendations(ctx, "citizen-1")
	require.NoError(t, err)
	assert.Equal(t, "senior-pension", refreshed[0].Scheme.ID)

	after, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)
	assert.Equal(t, ids(refreshed), ids(after))

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, models.EventRecommendationsRefreshed, event.EventType)
	assert.Equal(t, "citizen-1", event.UserID)
	assert.Equal(t, 3, event.Total)
	assert.NotEmpty(t, event.EventID)
}

func TestRefreshRecommendations_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.publisher.err = errors.New("sns throttled")

	recs, err := f.engine.RefreshRecommendations(context.Background(), "citizen-1")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestRefreshRecommendations_FailsWhenInvalidationFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{Category: "education"})
	require.NoError(t, err)

	f.redis.SetError("LOADING dataset in memory")
	_, err = f.engine.RefreshRecommendations(ctx, "citizen-1")
	requireCode(t, err, commonerrors.ErrCodeCacheUnavailable)
	assert.Empty(t, f.publisher.events)

	f.redis.SetError("")
	_, ok := f.cache.Get(ctx, "citizen-1", models.SchemeFilters{Category: "education"}.Key())
	require.True(t, ok)

	_, err = f.engine.RefreshRecommendations(ctx, "citizen-1")
	require.NoError(t, err)
	_, ok = f.cache.Get(ctx, "citizen-1", models.SchemeFilters{Category: "education"}.Key())
	assert.False(t, ok)
	assert.Len(t, f.publisher.events, 1)
}

func TestInvalidate_ForcesRecompute(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{Category: "education"})
	require.NoError(t, err)
	_, err = f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)

	require.NoError(t, f.engine.Invalidate(ctx, "citizen-1"))

	_, ok := f.cache.Get(ctx, "citizen-1", "")
	assert.False(t, ok)
	_, ok = f.cache.Get(ctx, "citizen-1", models.SchemeFilters{Category: "education"}.Key())
	assert.False(t, ok)

	_, err = f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.schemes.calls.Load())
}

func TestInvalidate_StaleComputationDoesNotWrite(t *testing.T) {
	f := newFixture(t, nil)
	f.profiles.gate()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.GetRecommendations(ctx, "citizen-1", models.RecommendationOptions{})
		done <- err
	}()
	<-f.profiles.started

	require.NoError(t, f.engine.Invalidate(ctx, "citizen-1"))
	close(f.profiles.release)
	require.NoError(t, <-done)

	_, ok := f.cache.Get(ctx, "citizen-1", "")
	assert.False(t, ok)
}

// ==========================
// ExplainRecommendation
// ==========================

func TestExplainRecommendation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	exp, err := f.engine.ExplainRecommendation(ctx, "citizen-1", "girl-scholarship", "hi")
	require.NoError(t, err)
	assert.Equal(t, "citizen-1", exp.UserID)
	assert.Equal(t, "girl-scholarship", exp.SchemeID)
	assert.Equal(t, "hi", exp.Language)
	require.Len(t, exp.Criteria, 2)
	assert.False(t, exp.Criteria[0].Matched)
	assert.False(t, exp.Criteria[1].Matched)
	assert.Equal(t, 0.0, exp.MatchScore)
	assert.False(t, exp.Eligible)

	_, ok := f.cache.Get(ctx, "citizen-1", "")
	assert.False(t, ok)

	_, err = f.engine.ExplainRecommendation(ctx, "citizen-1", "unknown", "")
	requireCode(t, err, commonerrors.ErrCodeSchemeNotFound)
	assert.ErrorIs(t, err, models.ErrSchemeNotFound)

	_, err = f.engine.ExplainRecommendation(ctx, "ghost", "girl-scholarship", "")
	requireCode(t, err, commonerrors.ErrCodeProfileNotFound)
}
