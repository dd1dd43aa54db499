// internal/models/scheme.go
package models

import (
	"net/url"
	"strings"
	"time"
)

// Operator is the comparison applied by an eligibility rule.
type Operator string

const (
	OpEq       Operator = "eq"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
)

// EligibilityRule is a weighted predicate over one profile field.
type EligibilityRule struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
	Weight   float64  `json:"weight"`
}

type DocumentRequirement struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Mandatory   bool   `json:"mandatory"`
}

type Benefit struct {
	Type        string   `json:"type"`
	Amount      *float64 `json:"amount,omitempty"`
	Description string   `json:"description,omitempty"`
}

type Timeline struct {
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	IsOngoing bool       `json:"isOngoing"`
}

// Scheme is a welfare scheme definition from the catalog.
type Scheme struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Category    string                `json:"category"`
	State       string                `json:"state,omitempty"`
	Rules       []EligibilityRule     `json:"rules"`
	Documents   []DocumentRequirement `json:"documents,omitempty"`
	Benefit     Benefit               `json:"benefit"`
	Timeline    Timeline              `json:"timeline"`
	Popularity  float64               `json:"popularity"`
	SuccessRate *float64              `json:"successRate,omitempty"`
	Active      bool                  `json:"active"`
}

// SchemeFilters are passed through to the catalog query unchanged.
type SchemeFilters struct {
	Category    string `json:"category,omitempty"`
	State       string `json:"state,omitempty"`
	BenefitType string `json:"benefitType,omitempty"`
}

func (f SchemeFilters) IsZero() bool {
	return f == SchemeFilters{}
}

// Key is a stable, order-independent encoding used in cache keys.
// It is empty when no filter is set.
func (f SchemeFilters) Key() string {
	v := url.Values{}
	if f.Category != "" {
		v.Set("category", strings.ToLower(f.Category))
	}
	if f.State != "" {
		v.Set("state", strings.ToLower(f.State))
	}
	if f.BenefitType != "" {
		v.Set("benefitType", strings.ToLower(f.BenefitType))
	}
	return v.Encode()
}
