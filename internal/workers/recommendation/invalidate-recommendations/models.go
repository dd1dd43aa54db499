// internal/workers/recommendation/invalidate-recommendations/models.go
package invalidaterecommendations

import "time"

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	UserID        string    `json:"userId"`
	Invalidated   bool      `json:"invalidated"`
	InvalidatedAt time.Time `json:"invalidatedAt"`
}
