// internal/workers/recommendation/get-recommendations/models.go
package getrecommendations

import (
	"time"

	"welfare-recommender/internal/models"
)

type Input struct {
	UserID        string   `json:"userId"`
	Limit         int      `json:"limit,omitempty"`
	Category      string   `json:"category,omitempty"`
	State         string   `json:"state,omitempty"`
	BenefitType   string   `json:"benefitType,omitempty"`
	MinMatchScore *float64 `json:"minMatchScore,omitempty"`
	Language      string   `json:"language,omitempty"`
}

func (i *Input) Options() models.RecommendationOptions {
	return models.RecommendationOptions{
		Limit:         i.Limit,
		Category:      i.Category,
		State:         i.State,
		BenefitType:   i.BenefitType,
		MinMatchScore: i.MinMatchScore,
		Language:      i.Language,
	}
}

type Output struct {
	UserID          string                     `json:"userId"`
	Recommendations []models.RecommendedScheme `json:"recommendations"`
	Total           int                        `json:"total"`
	Language        string                     `json:"language,omitempty"`
	GeneratedAt     time.Time                  `json:"generatedAt"`
}
