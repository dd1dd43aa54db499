// Package eligibility evaluates weighted scheme rules against a citizen profile.
package eligibility

import (
	"fmt"
	"strings"

	"welfare-recommender/internal/models"
)

// Outcome classifies a single rule evaluation.
type Outcome int

const (
	Matched Outcome = iota
	Unmatched
	Missing
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Unmatched:
		return "unmatched"
	default:
		return "missing"
	}
}

// Evaluation is the result of Evaluate. Malformed evaluations are always Unmatched.
type Evaluation struct {
	Outcome   Outcome
	Malformed bool
	Reason    string
}

func matched(ok bool) Evaluation {
	if ok {
		return Evaluation{Outcome: Matched}
	}
	return Evaluation{Outcome: Unmatched}
}

func malformed(format string, args ...interface{}) Evaluation {
	return Evaluation{Outcome: Unmatched, Malformed: true, Reason: fmt.Sprintf(format, args...)}
}

// Evaluate applies rule to the profile value. present=false means the profile
// does not carry rule.Field. It never panics and never fails: operator/type
// mismatches come back as malformed mismatches.
func Evaluate(rule models.EligibilityRule, value models.Value, present bool) Evaluation {
	if !present || !value.IsValid() {
		return Evaluation{Outcome: Missing}
	}
	if !rule.Value.IsValid() {
		return malformed("rule %s has no value", rule.Field)
	}

	switch rule.Operator {
	case models.OpEq:
		return matched(value.Equal(rule.Value))

	case models.OpLt, models.OpLte, models.OpGt, models.OpGte:
		return compare(rule, value)

	case models.OpIn:
		if rule.Value.Kind() != models.KindSet {
			return malformed("in requires a set, got %s", rule.Value.Kind())
		}
		return matched(rule.Value.Contains(value))

	case models.OpContains:
		return contains(rule, value)

	default:
		return malformed("unknown operator %q", rule.Operator)
	}
}

func compare(rule models.EligibilityRule, value models.Value) Evaluation {
	want, ok := rule.Value.AsNumber()
	if !ok {
		return malformed("%s requires a numeric rule value, got %s", rule.Operator, rule.Value.Kind())
	}
	got, ok := value.AsNumber()
	if !ok {
		return malformed("%s requires a numeric profile value, got %s", rule.Operator, value.Kind())
	}

	switch rule.Operator {
	case models.OpLt:
		return matched(got < want)
	case models.OpLte:
		return matched(got <= want)
	case models.OpGt:
		return matched(got > want)
	default:
		return matched(got >= want)
	}
}

func contains(rule models.EligibilityRule, value models.Value) Evaluation {
	switch value.Kind() {
	case models.KindSet:
		return matched(value.Contains(rule.Value))
	case models.KindText:
		needle, ok := rule.Value.AsText()
		if !ok {
			return malformed("contains on text requires a text rule value, got %s", rule.Value.Kind())
		}
		haystack, _ := value.AsText()
		return matched(strings.Contains(haystack, needle))
	default:
		return malformed("contains requires a set or text profile value, got %s", value.Kind())
	}
}
