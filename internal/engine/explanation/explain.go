// Package explanation expands one scheme's assessment into per-criterion detail.
package explanation

import (
	"fmt"
	"strings"

	"welfare-recommender/internal/engine/eligibility"
	"welfare-recommender/internal/models"
)

const DefaultLanguage = "en"

// Explain re-assesses scheme against profile. Results are never cached so they
// always reflect the profile passed in. Language is echoed back for the caller's
// text resolution layer.
func Explain(scheme models.Scheme, profile *models.Profile, language string) models.RecommendationExplanation {
	if language == "" {
		language = DefaultLanguage
	}

	a := eligibility.AssessDetailed(scheme, profile)

	criteria := make([]models.CriterionExplanation, 0, len(a.Evaluations))
	for _, ev := range a.Evaluations {
		c := models.CriterionExplanation{
			Criterion:     ev.Rule.Field,
			Operator:      ev.Rule.Operator,
			RequiredValue: ev.Rule.Value,
			Matched:       ev.Outcome == eligibility.Matched,
			Missing:       ev.Outcome == eligibility.Missing,
			Malformed:     ev.Malformed,
			Weight:        ev.Rule.Weight,
			Detail:        describe(ev),
		}
		if ev.Present {
			v := ev.Value
			c.UserValue = &v
		}
		criteria = append(criteria, c)
	}

	exp := models.RecommendationExplanation{
		SchemeID:           scheme.ID,
		SchemeName:         scheme.Name,
		Eligible:           a.Result.Eligible,
		MatchScore:         a.Result.MatchScore,
		Criteria:           criteria,
		MissingProfileData: a.Result.MissingProfileData,
		Documents:          scheme.Documents,
		Summary:            a.Result.Explanation,
		Language:           language,
	}
	if profile != nil {
		exp.UserID = profile.UserID
	}
	return exp
}

var operatorText = map[models.Operator]string{
	models.OpEq:       "equal to",
	models.OpLt:       "less than",
	models.OpLte:      "at most",
	models.OpGt:       "greater than",
	models.OpGte:      "at least",
	models.OpIn:       "one of",
	models.OpContains: "containing",
}

func describe(ev eligibility.RuleEvaluation) string {
	op, ok := operatorText[ev.Rule.Operator]
	if !ok {
		op = string(ev.Rule.Operator)
	}
	requirement := fmt.Sprintf("%s must be %s %s", ev.Rule.Field, op, ev.Rule.Value.String())

	switch {
	case ev.Outcome == eligibility.Missing:
		return requirement + "; not provided in profile"
	case ev.Malformed:
		return requirement + "; rule could not be applied (" + strings.TrimSpace(ev.Reason) + ")"
	case ev.Outcome == eligibility.Matched:
		return fmt.Sprintf("%s; profile value %s satisfies it", requirement, ev.Value.String())
	default:
		return fmt.Sprintf("%s; profile value %s does not", requirement, ev.Value.String())
	}
}
