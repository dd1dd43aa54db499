// pkg/registry/schema.go
package registry

type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

type Activity struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries"`
	Workflows            []string               `json:"workflows"`
	Tags                 []string               `json:"tags"`
}

const (
	TaskGetRecommendations        = "get-recommendations"
	TaskExplainRecommendation     = "explain-recommendation"
	TaskRefreshRecommendations    = "refresh-recommendations"
	TaskInvalidateRecommendations = "invalidate-recommendations"
)

func userIDProperty() map[string]interface{} {
	return map[string]interface{}{"type": "string", "minLength": 1}
}

func objectSchema(required []string, properties map[string]interface{}) map[string]interface{} {
	req := make([]interface{}, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]interface{}{
		"type":       "object",
		"required":   req,
		"properties": properties,
	}
}

func recommendationListSchema() map[string]interface{} {
	return objectSchema([]string{"recommendations", "total"}, map[string]interface{}{
		"recommendations": map[string]interface{}{"type": "array"},
		"total":           map[string]interface{}{"type": "integer", "minimum": 0},
	})
}

// Default is the registry of every task type this service implements.
func Default() *ActivityRegistry {
	return &ActivityRegistry{
		Version:     "1.0.0",
		LastUpdated: "2026-10-01T00:00:00Z",
		Activities: []Activity{
			{
				ID:                   TaskGetRecommendations,
				DisplayName:          "Get Recommendations",
				Description:          "Ranks every active welfare scheme for a citizen and returns the top results",
				Category:             "recommendation",
				Version:              "1.0.0",
				TaskType:             TaskGetRecommendations,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"userId"}, map[string]interface{}{
					"userId":        userIDProperty(),
					"limit":         map[string]interface{}{"type": "integer", "minimum": 0},
					"category":      map[string]interface{}{"type": "string"},
					"state":         map[string]interface{}{"type": "string"},
					"benefitType":   map[string]interface{}{"type": "string"},
					"minMatchScore": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
					"language":      map[string]interface{}{"type": "string"},
				}),
				OutputSchema: recommendationListSchema(),
				ErrorCodes:   []string{"INVALID_INPUT", "PROFILE_NOT_FOUND", "DEPENDENCY_TIMEOUT", "PROFILE_FETCH_FAILED", "CATALOG_QUERY_FAILED"},
				Timeout:      "10s",
				Retries:      3,
				Workflows:    []string{"citizen-scheme-discovery"},
				Tags:         []string{"recommendation", "read"},
			},
			{
				ID:                   TaskExplainRecommendation,
				DisplayName:          "Explain Recommendation",
				Description:          "Explains criterion by criterion why a scheme matches or does not match a citizen",
				Category:             "recommendation",
				Version:              "1.0.0",
				TaskType:             TaskExplainRecommendation,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"userId", "schemeId"}, map[string]interface{}{
					"userId":   userIDProperty(),
					"schemeId": map[string]interface{}{"type": "string", "minLength": 1},
					"language": map[string]interface{}{"type": "string"},
				}),
				OutputSchema: objectSchema([]string{"explanation"}, map[string]interface{}{
					"explanation": map[string]interface{}{"type": "object"},
				}),
				ErrorCodes: []string{"INVALID_INPUT", "PROFILE_NOT_FOUND", "SCHEME_NOT_FOUND", "DEPENDENCY_TIMEOUT"},
				Timeout:    "10s",
				Retries:    3,
				Workflows:  []string{"citizen-scheme-discovery"},
				Tags:       []string{"recommendation", "read"},
			},
			{
				ID:                   TaskRefreshRecommendations,
				DisplayName:          "Refresh Recommendations",
				Description:          "Drops cached recommendations, recomputes them and announces the result",
				Category:             "recommendation",
				Version:              "1.0.0",
				TaskType:             TaskRefreshRecommendations,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"userId"}, map[string]interface{}{
					"userId": userIDProperty(),
				}),
				OutputSchema: recommendationListSchema(),
				ErrorCodes:   []string{"INVALID_INPUT", "PROFILE_NOT_FOUND", "DEPENDENCY_TIMEOUT", "PROFILE_FETCH_FAILED", "CATALOG_QUERY_FAILED", "CACHE_UNAVAILABLE"},
				Timeout:      "15s",
				Retries:      3,
				Workflows:    []string{"profile-updated"},
				Tags:         []string{"recommendation", "write"},
			},
			{
				ID:                   TaskInvalidateRecommendations,
				DisplayName:          "Invalidate Recommendations",
				Description:          "Drops every cached recommendation list for a citizen",
				Category:             "recommendation",
				Version:              "1.0.0",
				TaskType:             TaskInvalidateRecommendations,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"userId"}, map[string]interface{}{
					"userId": userIDProperty(),
				}),
				OutputSchema: objectSchema([]string{"invalidated"}, map[string]interface{}{
					"invalidated": map[string]interface{}{"type": "boolean"},
				}),
				ErrorCodes: []string{"INVALID_INPUT", "CACHE_UNAVAILABLE"},
				Timeout:    "5s",
				Retries:    3,
				Workflows:  []string{"profile-updated"},
				Tags:       []string{"recommendation", "cache"},
			},
		},
	}
}
