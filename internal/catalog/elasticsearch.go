package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	DefaultIndex   = "schemes"
	searchPageSize = 500
)

// ElasticsearchCatalog reads scheme documents stored with the JSON layout of
// models.Scheme. category, state and benefit.type are keyword fields and id is
// a unique keyword used to page through the index.
type ElasticsearchCatalog struct {
	client   *elasticsearch.Client
	index    string
	pageSize int
	logger   logger.Logger
	now      func() time.Time
}

func NewElasticsearchCatalog(client *elasticsearch.Client, index string, log logger.Logger, now func() time.Time) *ElasticsearchCatalog {
	if index == "" {
		index = DefaultIndex
	}
	if now == nil {
		now = time.Now
	}
	return &ElasticsearchCatalog{
		client:   client,
		index:    index,
		pageSize: searchPageSize,
		logger:   log.WithFields(map[string]interface{}{"component": "catalog-elasticsearch"}),
		now:      now,
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
			Sort   []interface{}   `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

type getResponse struct {
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

// keywordTerm matches a keyword field ignoring case, the same way the
// postgres catalog compares lower(col) = lower($n).
func keywordTerm(field, value string) map[string]interface{} {
	return map[string]interface{}{
		"term": map[string]interface{}{
			field: map[string]interface{}{"value": value, "case_insensitive": true},
		},
	}
}

// buildSchemeQuery is a bool query with filter clauses only, so no scoring
// is done by the search engine. Results are sorted by id so that searchAfter
// can resume from the last hit of the previous page.
func buildSchemeQuery(filters models.SchemeFilters, size int, searchAfter []interface{}) map[string]interface{} {
	filterClauses := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"active": true}},
	}
	if filters.Category != "" {
		filterClauses = append(filterClauses, keywordTerm("category", filters.Category))
	}
	if filters.State != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					keywordTerm("state", filters.State),
					map[string]interface{}{"bool": map[string]interface{}{
						"must_not": map[string]interface{}{"exists": map[string]interface{}{"field": "state"}},
					}},
				},
				"minimum_should_match": 1,
			},
		})
	}
	if filters.BenefitType != "" {
		filterClauses = append(filterClauses, keywordTerm("benefit.type", filters.BenefitType))
	}

	q := map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": filterClauses}},
		"sort":  []interface{}{map[string]interface{}{"id": "asc"}},
	}
	if len(searchAfter) > 0 {
		q["search_after"] = searchAfter
	}
	return q
}

// GetSchemes reads every matching document, one page at a time, so the
// scoring pass always sees the whole catalog.
func (c *ElasticsearchCatalog) GetSchemes(ctx context.Context, filters models.SchemeFilters) ([]models.Scheme, error) {
	now := c.now()
	schemes := make([]models.Scheme, 0)

	var searchAfter []interface{}
	for {
		page, err := c.search(ctx, buildSchemeQuery(filters, c.pageSize, searchAfter))
		if err != nil {
			return nil, err
		}

		for _, hit := range page.Hits.Hits {
			s, err := decodeScheme(hit.ID, hit.Source)
			if err != nil {
				c.logger.Warn("skipping scheme document", map[string]interface{}{
					"schemeId": hit.ID,
					"error":    err.Error(),
				})
				continue
			}
			if available(s, now) {
				schemes = append(schemes, s)
			}
		}

		hits := page.Hits.Hits
		if len(hits) < c.pageSize {
			return schemes, nil
		}
		last := hits[len(hits)-1].Sort
		if len(last) == 0 {
			return nil, fmt.Errorf("search schemes: hit %s has no sort values to page from", hits[len(hits)-1].ID)
		}
		searchAfter = last
	}
}

func (c *ElasticsearchCatalog) search(ctx context.Context, query map[string]interface{}) (*searchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("search schemes: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search schemes: %s", readError(res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &parsed, nil
}

func (c *ElasticsearchCatalog) GetScheme(ctx context.Context, schemeID string) (*models.Scheme, error) {
	req := esapi.GetRequest{Index: c.index, DocumentID: schemeID}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("get scheme %s: %w", schemeID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, models.ErrSchemeNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("get scheme %s: %s", schemeID, readError(res))
	}

	var parsed getResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode scheme %s: %w", schemeID, err)
	}
	if !parsed.Found {
		return nil, models.ErrSchemeNotFound
	}

	s, err := decodeScheme(schemeID, parsed.Source)
	if err != nil {
		return nil, err
	}
	if !available(s, c.now()) {
		return nil, models.ErrSchemeNotFound
	}
	return &s, nil
}

// decodeScheme validates the rule document before decoding the full source.
func decodeScheme(id string, source json.RawMessage) (models.Scheme, error) {
	var head struct {
		ID    string          `json:"id"`
		Rules json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(source, &head); err != nil {
		return models.Scheme{}, fmt.Errorf("decode scheme %s: %w", id, err)
	}
	if head.ID == "" {
		head.ID = id
	}

	rules, err := decodeRules(head.ID, head.Rules)
	if err != nil {
		return models.Scheme{}, err
	}

	var s models.Scheme
	if err := json.Unmarshal(source, &s); err != nil {
		return models.Scheme{}, fmt.Errorf("decode scheme %s: %w", id, err)
	}
	s.ID = head.ID
	s.Rules = rules
	return s, nil
}

func readError(res *esapi.Response) string {
	body, err := io.ReadAll(io.LimitReader(res.Body, 1024))
	if err != nil {
		return res.Status()
	}
	var e struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Type != "" {
		return fmt.Sprintf("%s: %s: %s", res.Status(), e.Error.Type, e.Error.Reason)
	}
	return res.Status()
}
