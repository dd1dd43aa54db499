package eligibility

import (
	"fmt"
	"math"
	"strings"

	"welfare-recommender/internal/models"
)

// RuleEvaluation pairs a rule with the profile value it was checked against.
type RuleEvaluation struct {
	Rule    models.EligibilityRule
	Value   models.Value
	Present bool
	Evaluation
}

// Assessment is an EligibilityResult plus the per-rule trace it was built from.
type Assessment struct {
	Result      models.EligibilityResult
	Evaluations []RuleEvaluation
}

// Assess scores one scheme against one profile.
func Assess(scheme models.Scheme, profile *models.Profile) models.EligibilityResult {
	return AssessDetailed(scheme, profile).Result
}

// AssessDetailed is Assess with the rule-by-rule trace kept.
//
// matchScore = 100 * w(matched) / (w(matched) + w(unmatched)); rules whose field
// is missing from the profile count on neither side. A field carrying several
// rules is matched only when all of them match. Rules with a non-positive
// weight carry no weight and are reported malformed.
func AssessDetailed(scheme models.Scheme, profile *models.Profile) Assessment {
	evals := make([]RuleEvaluation, 0, len(scheme.Rules))

	var matchedWeight, unmatchedWeight float64
	fieldOutcome := make(map[string]Outcome, len(scheme.Rules))
	fieldOrder := make([]string, 0, len(scheme.Rules))
	malformedSeen := make(map[string]bool)
	var malformedFields []string

	for _, rule := range scheme.Rules {
		value, present := profile.Lookup(rule.Field)
		ev := Evaluate(rule, value, present)

		weight := rule.Weight
		if !(weight > 0) || math.IsInf(weight, 0) {
			weight = 0
			if ev.Outcome != Missing {
				ev = malformed("rule %s has invalid weight %v", rule.Field, rule.Weight)
			}
		}

		switch ev.Outcome {
		case Matched:
			matchedWeight += weight
		case Unmatched:
			unmatchedWeight += weight
		}

		if ev.Malformed && !malformedSeen[rule.Field] {
			malformedSeen[rule.Field] = true
			malformedFields = append(malformedFields, rule.Field)
		}

		prev, seen := fieldOutcome[rule.Field]
		if !seen {
			fieldOrder = append(fieldOrder, rule.Field)
			fieldOutcome[rule.Field] = ev.Outcome
		} else if prev == Matched && ev.Outcome == Unmatched {
			fieldOutcome[rule.Field] = Unmatched
		}

		evals = append(evals, RuleEvaluation{Rule: rule, Value: value, Present: present, Evaluation: ev})
	}

	result := models.EligibilityResult{
		SchemeID:           scheme.ID,
		MatchedCriteria:    []string{},
		UnmatchedCriteria:  []string{},
		MissingProfileData: []string{},
		MalformedRules:     malformedFields,
	}
	for _, field := range fieldOrder {
		switch fieldOutcome[field] {
		case Matched:
			result.MatchedCriteria = append(result.MatchedCriteria, field)
		case Unmatched:
			result.UnmatchedCriteria = append(result.UnmatchedCriteria, field)
		default:
			result.MissingProfileData = append(result.MissingProfileData, field)
		}
	}

	if denom := matchedWeight + unmatchedWeight; denom > 0 {
		result.MatchScore = clamp(round2(100 * matchedWeight / denom))
	}
	result.Eligible = result.MatchScore == 100 &&
		len(result.MissingProfileData) == 0 &&
		len(result.UnmatchedCriteria) == 0
	result.Explanation = summarize(result, len(fieldOrder))

	return Assessment{Result: result, Evaluations: evals}
}

func summarize(r models.EligibilityResult, total int) string {
	if total == 0 {
		return "scheme defines no eligibility criteria"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d criteria met (match score %.0f%%)", len(r.MatchedCriteria), total, r.MatchScore)
	if len(r.UnmatchedCriteria) > 0 {
		fmt.Fprintf(&b, "; not met: %s", strings.Join(r.UnmatchedCriteria, ", "))
	}
	if len(r.MissingProfileData) > 0 {
		fmt.Fprintf(&b, "; profile incomplete for: %s", strings.Join(r.MissingProfileData, ", "))
	}
	if r.Eligible {
		b.WriteString("; eligible")
	}
	return b.String()
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func clamp(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 100:
		return 100
	default:
		return x
	}
}
