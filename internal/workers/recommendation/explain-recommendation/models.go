// internal/workers/recommendation/explain-recommendation/models.go
package explainrecommendation

import "welfare-recommender/internal/models"

type Input struct {
	UserID   string `json:"userId"`
	SchemeID string `json:"schemeId"`
	Language string `json:"language,omitempty"`
}

type Output struct {
	Explanation *models.RecommendationExplanation `json:"explanation"`
	Eligible    bool                              `json:"eligible"`
	MatchScore  float64                           `json:"matchScore"`
}
