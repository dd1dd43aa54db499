// internal/models/notification.go
package models

import "time"

const EventRecommendationsRefreshed = "recommendations.refreshed"

// RecommendationsRefreshed is published after a forced recomputation so the
// notification subsystem can alert the citizen about high-priority schemes.
type RecommendationsRefreshed struct {
	EventID     string    `json:"eventId"`
	EventType   string    `json:"eventType"`
	UserID      string    `json:"userId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Total       int       `json:"total"`
	TopSchemes  []string  `json:"topSchemes"`
}
