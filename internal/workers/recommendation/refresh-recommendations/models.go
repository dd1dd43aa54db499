// internal/workers/recommendation/refresh-recommendations/models.go
package refreshrecommendations

import (
	"time"

	"welfare-recommender/internal/models"
)

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	UserID          string                     `json:"userId"`
	Recommendations []models.RecommendedScheme `json:"recommendations"`
	Total           int                        `json:"total"`
	RefreshedAt     time.Time                  `json:"refreshedAt"`
}
