package catalog

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

var schemeColumnNames = []string{
	"id", "name", "description", "category", "state",
	"rules", "documents", "benefit_type", "benefit_amount", "benefit_description",
	"start_date", "end_date", "is_ongoing", "popularity", "success_rate", "active",
}

func schemeRow(id, category, rules string, amount interface{}, endDate interface{}) []driver.Value {
	return []driver.Value{
		id, "Scheme " + id, "", category, "",
		[]byte(rules), []byte(`[{"name":"aadhaar","mandatory":true}]`), "cash", amount, "",
		nil, endDate, endDate == nil, 55.0, 0.8, true,
	}
}

const validRules = `[{"field":"age","operator":"gte","value":18,"weight":1},{"field":"state","operator":"in","value":["bihar","up"],"weight":2}]`

// ==========================
// Rule documents
// ==========================

func TestDecodeRules(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{name: "valid", raw: validRules, wantLen: 2},
		{name: "null document", raw: "null", wantLen: 0},
		{name: "unknown operator is left to the assessor", raw: `[{"field":"age","operator":"between","value":1,"weight":1}]`, wantLen: 1},
		{name: "missing weight", raw: `[{"field":"age","operator":"gte","value":18}]`, wantErr: true},
		{name: "object value", raw: `[{"field":"age","operator":"eq","value":{"a":1},"weight":1}]`, wantErr: true},
		{name: "not an array", raw: `{"field":"age"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := decodeRules("s1", []byte(tt.raw))
			if tt.wantErr {
				var invalid *InvalidRulesError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, "s1", invalid.SchemeID)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rules, tt.wantLen)
		})
	}
}

func TestAvailable(t *testing.T) {
	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)

	assert.True(t, available(models.Scheme{Active: true}, testNow))
	assert.True(t, available(models.Scheme{Active: true, Timeline: models.Timeline{EndDate: &future}}, testNow))
	assert.True(t, available(models.Scheme{Active: true, Timeline: models.Timeline{EndDate: &past, IsOngoing: true}}, testNow))
	assert.False(t, available(models.Scheme{Active: true, Timeline: models.Timeline{EndDate: &past}}, testNow))
	assert.False(t, available(models.Scheme{Active: false}, testNow))
}

// ==========================
// PostgresCatalog
// ==========================

func TestPostgresCatalog_GetSchemes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	end := testNow.Add(10 * 24 * time.Hour)
	rows := sqlmock.NewRows(schemeColumnNames).
		AddRow(schemeRow("s1", "education", validRules, 5000.0, end)...).
		AddRow(schemeRow("s2", "education", `[{"field":"age"}]`, nil, nil)...).
		AddRow(schemeRow("s3", "education", `[]`, nil, nil)...)

	mock.ExpectQuery("FROM schemes").
		WithArgs(testNow, "education", "bihar", "").
		WillReturnRows(rows)

	catalog := NewPostgresCatalog(db, logger.NewTestLogger(t), fixedNow)
	schemes, err := catalog.GetSchemes(context.Background(), models.SchemeFilters{Category: "education", State: "bihar"})
	require.NoError(t, err)
	require.Len(t, schemes, 2)

	s1 := schemes[0]
	assert.Equal(t, "s1", s1.ID)
	require.Len(t, s1.Rules, 2)
	assert.Equal(t, models.OpIn, s1.Rules[1].Operator)
	require.NotNil(t, s1.Benefit.Amount)
	assert.Equal(t, 5000.0, *s1.Benefit.Amount)
	require.NotNil(t, s1.Timeline.EndDate)
	assert.False(t, s1.Timeline.IsOngoing)
	require.NotNil(t, s1.SuccessRate)
	assert.Len(t, s1.Documents, 1)

	s3 := schemes[1]
	assert.Equal(t, "s3", s3.ID)
	assert.Nil(t, s3.Benefit.Amount)
	assert.True(t, s3.Timeline.IsOngoing)
	assert.Empty(t, s3.Rules)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalog_GetSchemesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM schemes").WillReturnError(errors.New("relation does not exist"))

	_, err = NewPostgresCatalog(db, logger.NewTestLogger(t), fixedNow).
		GetSchemes(context.Background(), models.SchemeFilters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestPostgresCatalog_GetScheme(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	catalog := NewPostgresCatalog(db, logger.NewTestLogger(t), fixedNow)
	ctx := context.Background()

	mock.ExpectQuery("WHERE id = \\$1").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(schemeColumnNames).AddRow(schemeRow("s1", "health", validRules, nil, nil)...))
	s, err := catalog.GetScheme(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "health", s.Category)

	mock.ExpectQuery("WHERE id = \\$1").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(schemeColumnNames))
	_, err = catalog.GetScheme(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrSchemeNotFound)

	closed := testNow.Add(-48 * time.Hour)
	mock.ExpectQuery("WHERE id = \\$1").WithArgs("closed").
		WillReturnRows(sqlmock.NewRows(schemeColumnNames).AddRow(schemeRow("closed", "health", validRules, nil, closed)...))
	_, err = catalog.GetScheme(ctx, "closed")
	assert.ErrorIs(t, err, models.ErrSchemeNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// ElasticsearchCatalog
// ==========================

func newESCatalog(t *testing.T, handler http.HandlerFunc) *ElasticsearchCatalog {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return NewElasticsearchCatalog(client, "", logger.NewTestLogger(t), fixedNow)
}

func TestBuildSchemeQuery(t *testing.T) {
	q := buildSchemeQuery(models.SchemeFilters{Category: "Health", State: "Bihar", BenefitType: "cash"}, 50, nil)
	raw, err := json.Marshal(q)
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, `"category":{"case_insensitive":true,"value":"Health"}`)
	assert.Contains(t, body, `"state":{"case_insensitive":true,"value":"Bihar"}`)
	assert.Contains(t, body, `"benefit.type":{"case_insensitive":true,"value":"cash"}`)
	assert.Contains(t, body, `"must_not"`)
	assert.Contains(t, body, `"active":true`)
	assert.Contains(t, body, `"size":50`)
	assert.NotContains(t, body, "search_after")

	plain, err := json.Marshal(buildSchemeQuery(models.SchemeFilters{}, 50, []interface{}{"s2"}))
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "category")
	assert.Contains(t, string(plain), `"search_after":["s2"]`)
}

func TestElasticsearchCatalog_GetSchemes(t *testing.T) {
	var gotBody string
	catalog := newESCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/schemes/_search"), r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"s1","_source":{"id":"s1","name":"One","category":"health","active":true,
				"rules":[{"field":"age","operator":"gte","value":18,"weight":1}],
				"benefit":{"type":"cash","amount":1000},"timeline":{"isOngoing":true}}},
			{"_id":"s2","_source":{"id":"s2","active":true,"rules":[{"field":"age"}]}},
			{"_id":"s3","_source":{"id":"s3","active":true,"rules":[],"timeline":{"endDate":"2026-01-01T00:00:00Z"}}}
		]}}`))
	})

	schemes, err := catalog.GetSchemes(context.Background(), models.SchemeFilters{Category: "health"})
	require.NoError(t, err)
	require.Len(t, schemes, 1)
	assert.Equal(t, "s1", schemes[0].ID)
	require.Len(t, schemes[0].Rules, 1)
	assert.Equal(t, models.OpGte, schemes[0].Rules[0].Operator)
	assert.Contains(t, gotBody, `"category":{"case_insensitive":true,"value":"health"}`)
}

func TestElasticsearchCatalog_GetSchemesReadsEveryPage(t *testing.T) {
	doc := func(id string) string {
		return `{"_id":"` + id + `","sort":["` + id + `"],"_source":{"id":"` + id + `","active":true,"rules":[]}}`
	}
	pages := map[string]string{
		"":   `{"hits":{"hits":[` + doc("s1") + `,` + doc("s2") + `]}}`,
		"s2": `{"hits":{"hits":[` + doc("s3") + `,` + doc("s4") + `]}}`,
		"s4": `{"hits":{"hits":[` + doc("s5") + `]}}`,
	}

	var requests atomic.Int32
	catalog := newESCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var q struct {
			Size        int      `json:"size"`
			SearchAfter []string `json:"search_after"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, 2, q.Size)

		cursor := ""
		if len(q.SearchAfter) > 0 {
			cursor = q.SearchAfter[0]
		}
		page, ok := pages[cursor]
		if !assert.True(t, ok, "unexpected cursor %q", cursor) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(page))
	})
	catalog.pageSize = 2

	schemes, err := catalog.GetSchemes(context.Background(), models.SchemeFilters{})
	require.NoError(t, err)

	got := make([]string, 0, len(schemes))
	for _, s := range schemes {
		got = append(got, s.ID)
	}
	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5"}, got)
	assert.Equal(t, int32(3), requests.Load())
}

func TestElasticsearchCatalog_FullPageWithoutSortFails(t *testing.T) {
	catalog := newESCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_id":"s1","_source":{"id":"s1","active":true,"rules":[]}}]}}`))
	})
	catalog.pageSize = 1

	_, err := catalog.GetSchemes(context.Background(), models.SchemeFilters{})
	assert.Error(t, err)
}

func TestElasticsearchCatalog_SearchError(t *testing.T) {
	catalog := newESCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index [schemes]"}}`))
	})

	_, err := catalog.GetSchemes(context.Background(), models.SchemeFilters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index_not_found_exception")
}

func TestElasticsearchCatalog_GetScheme(t *testing.T) {
	catalog := newESCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/_doc/s1"):
			_, _ = w.Write([]byte(`{"_id":"s1","found":true,"_source":{"name":"One","active":true,"rules":[]}}`))
		case strings.HasSuffix(r.URL.Path, "/_doc/inactive"):
			_, _ = w.Write([]byte(`{"_id":"inactive","found":true,"_source":{"active":false,"rules":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"_id":"x","found":false}`))
		}
	})
	ctx := context.Background()

	s, err := catalog.GetScheme(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, "One", s.Name)

	_, err = catalog.GetScheme(ctx, "inactive")
	assert.ErrorIs(t, err, models.ErrSchemeNotFound)

	_, err = catalog.GetScheme(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrSchemeNotFound)
}

// ==========================
// CachedCatalog
// ==========================

type countingSource struct {
	schemes []models.Scheme
	calls   atomic.Int32
	err     error
}

func (s *countingSource) GetSchemes(_ context.Context, _ models.SchemeFilters) ([]models.Scheme, error) {
	s.calls.Add(1)
	return s.schemes, s.err
}

func (s *countingSource) GetScheme(_ context.Context, id string) (*models.Scheme, error) {
	for _, sc := range s.schemes {
		if sc.ID == id {
			return &sc, nil
		}
	}
	return nil, models.ErrSchemeNotFound
}

func setupCached(t *testing.T, source Source) (*CachedCatalog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewCachedCatalog(source, client, time.Minute, logger.NewTestLogger(t))
	c.now = fixedNow
	return c, mr
}

func TestCachedCatalog_ReadThrough(t *testing.T) {
	source := &countingSource{schemes: []models.Scheme{{
		ID: "s1", Active: true, Category: "health",
		Rules: []models.EligibilityRule{{Field: "age", Operator: models.OpGte, Value: models.Number(18), Weight: 1}},
	}}}
	c, mr := setupCached(t, source)
	ctx := context.Background()

	first, err := c.GetSchemes(ctx, models.SchemeFilters{})
	require.NoError(t, err)
	second, err := c.GetSchemes(ctx, models.SchemeFilters{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), source.calls.Load())
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, second[0].Rules[0].Value.Equal(models.Number(18)))
	assert.True(t, mr.Exists("catalog:schemes:all"))

	_, err = c.GetSchemes(ctx, models.SchemeFilters{Category: "health"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load())

	mr.FastForward(2 * time.Minute)
	_, err = c.GetSchemes(ctx, models.SchemeFilters{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), source.calls.Load())
}

func TestCachedCatalog_DropsSchemesClosedSinceCaching(t *testing.T) {
	soon := testNow.Add(time.Minute)
	source := &countingSource{schemes: []models.Scheme{
		{ID: "closing", Active: true, Timeline: models.Timeline{EndDate: &soon}},
		{ID: "open", Active: true, Timeline: models.Timeline{IsOngoing: true}},
	}}
	c, _ := setupCached(t, source)
	ctx := context.Background()

	_, err := c.GetSchemes(ctx, models.SchemeFilters{})
	require.NoError(t, err)

	c.now = func() time.Time { return testNow.Add(time.Hour) }
	schemes, err := c.GetSchemes(ctx, models.SchemeFilters{})
	require.NoError(t, err)
	require.Len(t, schemes, 1)
	assert.Equal(t, "open", schemes[0].ID)
}

func TestCachedCatalog_RedisDownFallsThrough(t *testing.T) {
	source := &countingSource{schemes: []models.Scheme{{ID: "s1", Active: true}}}
	c, mr := setupCached(t, source)
	mr.SetError("connection lost")

	schemes, err := c.GetSchemes(context.Background(), models.SchemeFilters{})
	require.NoError(t, err)
	assert.Len(t, schemes, 1)
}

func TestCachedCatalog_SourceErrorNotCached(t *testing.T) {
	source := &countingSource{err: errors.New("db down")}
	c, mr := setupCached(t, source)

	_, err := c.GetSchemes(context.Background(), models.SchemeFilters{})
	require.Error(t, err)
	assert.False(t, mr.Exists("catalog:schemes:all"))

	s, err := c.GetScheme(context.Background(), "s1")
	assert.Nil(t, s)
	assert.ErrorIs(t, err, models.ErrSchemeNotFound)
}
