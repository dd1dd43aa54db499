// internal/models/recommendation.go
package models

import "time"

type EligibilityStatus string

const (
	StatusEligible          EligibilityStatus = "eligible"
	StatusPartiallyEligible EligibilityStatus = "partially_eligible"
	StatusNotEligible       EligibilityStatus = "not_eligible"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// EligibilityResult is the outcome of assessing one scheme against one profile.
// MatchedCriteria, UnmatchedCriteria and MissingProfileData partition the
// scheme's rule fields. MalformedRules is a subset of UnmatchedCriteria.
type EligibilityResult struct {
	SchemeID           string   `json:"schemeId"`
	Eligible           bool     `json:"eligible"`
	MatchScore         float64  `json:"matchScore"`
	MatchedCriteria    []string `json:"matchedCriteria"`
	UnmatchedCriteria  []string `json:"unmatchedCriteria"`
	MissingProfileData []string `json:"missingProfileData"`
	MalformedRules     []string `json:"malformedRules,omitempty"`
	Explanation        string   `json:"explanation"`
}

// SchemeRef is the slice of a scheme carried in a recommendation.
type SchemeRef struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	State         string     `json:"state,omitempty"`
	BenefitType   string     `json:"benefitType"`
	BenefitAmount *float64   `json:"benefitAmount,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	Popularity    float64    `json:"popularity"`
}

func NewSchemeRef(s Scheme) SchemeRef {
	return SchemeRef{
		ID:            s.ID,
		Name:          s.Name,
		Category:      s.Category,
		State:         s.State,
		BenefitType:   s.Benefit.Type,
		BenefitAmount: s.Benefit.Amount,
		EndDate:       s.Timeline.EndDate,
		Popularity:    s.Popularity,
	}
}

// ScoreBreakdown holds each relevance component on a 0-100 scale before weighting.
type ScoreBreakdown struct {
	Eligibility  float64 `json:"eligibility"`
	Benefit      float64 `json:"benefit"`
	Deadline     float64 `json:"deadline"`
	Popularity   float64 `json:"popularity"`
	Completeness float64 `json:"completeness"`
}

type Reasoning struct {
	MatchedAttributes   []string       `json:"matchedAttributes"`
	UnmatchedAttributes []string       `json:"unmatchedAttributes"`
	MissingAttributes   []string       `json:"missingAttributes"`
	BenefitValue        *float64       `json:"benefitValue,omitempty"`
	DaysToDeadline      *int           `json:"daysToDeadline,omitempty"`
	Popularity          float64        `json:"popularity"`
	Breakdown           ScoreBreakdown `json:"breakdown"`
}

type RecommendedScheme struct {
	Scheme            SchemeRef         `json:"scheme"`
	MatchScore        float64           `json:"matchScore"`
	FinalScore        float64           `json:"finalScore"`
	Eligible          bool              `json:"eligible"`
	EligibilityStatus EligibilityStatus `json:"eligibilityStatus"`
	Priority          Priority          `json:"priority"`
	Reasoning         Reasoning         `json:"reasoning"`
}

// RecommendationOptions shape a getRecommendations request.
type RecommendationOptions struct {
	Limit         int      `json:"limit,omitempty"`
	Category      string   `json:"category,omitempty"`
	State         string   `json:"state,omitempty"`
	BenefitType   string   `json:"benefitType,omitempty"`
	MinMatchScore *float64 `json:"minMatchScore,omitempty"`
	Language      string   `json:"language,omitempty"`
}

func (o RecommendationOptions) Filters() SchemeFilters {
	return SchemeFilters{Category: o.Category, State: o.State, BenefitType: o.BenefitType}
}

// CacheEntry is one user's ranked list for one filter set.
type CacheEntry struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	FilterKey       string              `json:"filterKey,omitempty"`
	Recommendations []RecommendedScheme `json:"recommendations"`
	GeneratedAt     time.Time           `json:"generatedAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

// ValidAt reports whether the entry may still be served at now.
func (e *CacheEntry) ValidAt(now time.Time) bool {
	return e != nil && now.Before(e.ExpiresAt)
}

// CriterionExplanation describes a single rule evaluation.
// UserValue is nil when the profile lacks the field.
type CriterionExplanation struct {
	Criterion     string   `json:"criterion"`
	Operator      Operator `json:"operator"`
	UserValue     *Value   `json:"userValue"`
	RequiredValue Value    `json:"requiredValue"`
	Matched       bool     `json:"matched"`
	Missing       bool     `json:"missing"`
	Malformed     bool     `json:"malformed,omitempty"`
	Weight        float64  `json:"weight"`
	Detail        string   `json:"detail"`
}

type RecommendationExplanation struct {
	UserID             string                 `json:"userId"`
	SchemeID           string                 `json:"schemeId"`
	SchemeName         string                 `json:"schemeName"`
	Eligible           bool                   `json:"eligible"`
	MatchScore         float64                `json:"matchScore"`
	Criteria           []CriterionExplanation `json:"criteria"`
	MissingProfileData []string               `json:"missingProfileData"`
	Documents          []DocumentRequirement  `json:"documents,omitempty"`
	Summary            string                 `json:"summary"`
	Language           string                 `json:"language"`
}
