package getrecommendations

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"welfare-recommender/internal/common/config"
	"welfare-recommender/internal/common/errors"
	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Engine
// ==========================

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) GetRecommendations(ctx context.Context, userID string, opts models.RecommendationOptions) ([]models.RecommendedScheme, error) {
	args := m.Called(ctx, userID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RecommendedScheme), args.Error(1)
}

func createMockJob(key int64, variables interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "citizen-scheme-discovery",
		ElementId:          "Activity_GetRecommendations",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func newTestHandler(t *testing.T, engine Recommender) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		Config: &Config{Timeout: time.Second},
		Engine: engine,
		Logger: logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	h.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	return h
}

func sampleRecs() []models.RecommendedScheme {
	return []models.RecommendedScheme{
		{Scheme: models.SchemeRef{ID: "pm-kisan"}, MatchScore: 100, FinalScore: 88.5, Eligible: true,
			EligibilityStatus: models.StatusEligible, Priority: models.PriorityHigh},
		{Scheme: models.SchemeRef{ID: "ayushman"}, MatchScore: 60, FinalScore: 51.2,
			EligibilityStatus: models.StatusPartiallyEligible, Priority: models.PriorityMedium},
	}
}

// ==========================
// Tests
// ==========================

func TestNewHandler(t *testing.T) {
	_, err := NewHandler(HandlerOptions{})
	assert.Error(t, err)

	_, err = NewHandler(HandlerOptions{Engine: &MockEngine{}, Config: &Config{}})
	assert.Error(t, err)

	h, err := NewHandler(HandlerOptions{Engine: &MockEngine{}})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, h.config.Timeout)
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 2*time.Second, LoadConfig(config.WorkerConfig{Timeout: 2000}).Timeout)
	assert.Equal(t, 10*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
}

func TestParseInput(t *testing.T) {
	h := newTestHandler(t, &MockEngine{})

	tests := []struct {
		name      string
		variables interface{}
		wantErr   bool
		check     func(t *testing.T, in *Input)
	}{
		{
			name:      "all options",
			variables: map[string]interface{}{"userId": "u-1", "limit": 5, "category": "agriculture", "minMatchScore": 50, "language": "hi"},
			check: func(t *testing.T, in *Input) {
				assert.Equal(t, "u-1", in.UserID)
				assert.Equal(t, 5, in.Limit)
				assert.Equal(t, "agriculture", in.Category)
				require.NotNil(t, in.MinMatchScore)
				assert.Equal(t, 50.0, *in.MinMatchScore)
				assert.Equal(t, "hi", in.Language)
			},
		},
		{
			name:      "extra process variables are ignored",
			variables: map[string]interface{}{"userId": "u-1", "applicationId": "a-9"},
			check: func(t *testing.T, in *Input) {
				assert.Equal(t, "u-1", in.UserID)
				assert.Nil(t, in.MinMatchScore)
			},
		},
		{name: "missing user", variables: map[string]interface{}{"limit": 5}, wantErr: true},
		{name: "wrong type", variables: map[string]interface{}{"userId": 42}, wantErr: true},
		{name: "negative limit", variables: map[string]interface{}{"userId": "u-1", "limit": -1}, wantErr: true},
		{name: "not an object", variables: []string{"u-1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := h.parseInput(createMockJob(1, tt.variables))
			if tt.wantErr {
				require.Error(t, err)
				stdErr, ok := errors.AsStandardError(err)
				require.True(t, ok)
				assert.Equal(t, errors.ErrCodeInvalidInput, stdErr.Code)
				return
			}
			require.NoError(t, err)
			tt.check(t, in)
		})
	}
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	minScore := 40.0

	t.Run("maps options and wraps the list", func(t *testing.T) {
		engine := &MockEngine{}
		engine.On("GetRecommendations", mock.Anything, "u-1", models.RecommendationOptions{
			Limit: 2, State: "karnataka", MinMatchScore: &minScore, Language: "kn",
		}).Return(sampleRecs(), nil).Once()

		h := newTestHandler(t, engine)
		out, err := h.Execute(ctx, &Input{UserID: "u-1", Limit: 2, State: "karnataka", MinMatchScore: &minScore, Language: "kn"})
		require.NoError(t, err)

		assert.Equal(t, "u-1", out.UserID)
		assert.Equal(t, 2, out.Total)
		assert.Equal(t, "pm-kisan", out.Recommendations[0].Scheme.ID)
		assert.Equal(t, "kn", out.Language)
		assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), out.GeneratedAt)
		engine.AssertExpectations(t)
	})

	t.Run("empty list is not an error", func(t *testing.T) {
		engine := &MockEngine{}
		engine.On("GetRecommendations", mock.Anything, "u-2", mock.Anything).
			Return([]models.RecommendedScheme{}, nil).Once()

		out, err := newTestHandler(t, engine).Execute(ctx, &Input{UserID: "u-2"})
		require.NoError(t, err)
		assert.Equal(t, 0, out.Total)
		assert.NotNil(t, out.Recommendations)
	})

	t.Run("engine errors pass through", func(t *testing.T) {
		engine := &MockEngine{}
		engine.On("GetRecommendations", mock.Anything, "ghost", mock.Anything).
			Return(nil, errors.NewProfileNotFoundError("ghost", models.ErrProfileNotFound)).Once()

		_, err := newTestHandler(t, engine).Execute(ctx, &Input{UserID: "ghost"})
		stdErr, ok := errors.AsStandardError(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodeProfileNotFound, stdErr.Code)

		bpmn := errors.ConvertToBPMNError(stdErr)
		assert.Equal(t, "PROFILE_NOT_FOUND", bpmn.Code)
		assert.Equal(t, 0, bpmn.Retries)
	})

	t.Run("expired job context becomes a retryable timeout", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		engine := &MockEngine{}
		engine.On("GetRecommendations", mock.Anything, "u-3", mock.Anything).
			Return(nil, context.Canceled).Once()

		_, err := newTestHandler(t, engine).Execute(cctx, &Input{UserID: "u-3"})
		stdErr, ok := errors.AsStandardError(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodeDependencyTimeout, stdErr.Code)
		assert.True(t, stdErr.Retryable)
	})
}

func TestOutput_JSONShape(t *testing.T) {
	out := &Output{UserID: "u-1", Recommendations: sampleRecs(), Total: 2}
	raw, err := json.Marshal(out)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "recommendations")
	assert.Equal(t, float64(2), decoded["total"])
	assert.NotContains(t, decoded, "language")
}
