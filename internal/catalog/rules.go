// Package catalog adapts scheme sources to the engine. Every adapter returns
// only active schemes whose end date has not passed.
package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"welfare-recommender/internal/common/validation"
	"welfare-recommender/internal/models"
)

// ruleSetSchema checks structure only. Operator and value type mismatches are
// left to the assessor, which reports them as malformed rules.
var ruleSetSchema = validation.MustCompileJSON(`{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["field", "operator", "value", "weight"],
		"properties": {
			"field":    {"type": "string", "minLength": 1},
			"operator": {"type": "string", "minLength": 1},
			"value":    {"type": ["number", "string", "boolean", "array"]},
			"weight":   {"type": "number"}
		}
	}
}`)

// InvalidRulesError rejects a single scheme whose rule document is unusable.
type InvalidRulesError struct {
	SchemeID string
	Reason   string
}

func (e *InvalidRulesError) Error() string {
	return fmt.Sprintf("scheme %s has an invalid rule document: %s", e.SchemeID, e.Reason)
}

func decodeRules(schemeID string, raw []byte) ([]models.EligibilityRule, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []models.EligibilityRule{}, nil
	}

	res, err := ruleSetSchema.ValidateBytes(raw)
	if err != nil {
		return nil, &InvalidRulesError{SchemeID: schemeID, Reason: err.Error()}
	}
	if !res.Valid {
		return nil, &InvalidRulesError{SchemeID: schemeID, Reason: res.Summary()}
	}

	var rules []models.EligibilityRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, &InvalidRulesError{SchemeID: schemeID, Reason: err.Error()}
	}
	return rules, nil
}

// available reports whether a scheme may be recommended at now.
func available(s models.Scheme, now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.Timeline.IsOngoing || s.Timeline.EndDate == nil {
		return true
	}
	return !s.Timeline.EndDate.Before(now)
}
