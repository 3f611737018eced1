package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const undeterminedConfidence = 0.5

// EvaluateRules checks the applicant against the extracted bounds.
// Minimum is checked before maximum and the first violation is the only reason reported.
func EvaluateRules(constraints domain.ExtractedConstraints, facts domain.ApplicantFacts) domain.RuleDecision {
	rawAge, present := facts[domain.FactAge]
	if !present || rawAge == nil {
		return domain.RuleDecision{
			Eligibility: domain.EligibilityUndetermined,
			Reasons:     []string{"missing applicant fact: " + domain.FactAge},
			Confidence:  undeterminedConfidence,
		}
	}

	age, ok := numericFact(rawAge)
	if !ok {
		return domain.RuleDecision{
			Eligibility: domain.EligibilityUndetermined,
			Reasons:     []string{"applicant fact is not numeric: " + domain.FactAge},
			Confidence:  undeterminedConfidence,
		}
	}

	if minAge, ok := constraints[domain.ConstraintMinAge]; ok && age < minAge {
		return domain.RuleDecision{
			Eligibility: domain.EligibilityIneligible,
			Reasons:     []string{fmt.Sprintf("age %s is below the minimum age of %s", formatNumber(age), formatNumber(minAge))},
			Confidence:  1.0,
		}
	}
	if maxAge, ok := constraints[domain.ConstraintMaxAge]; ok && age > maxAge {
		return domain.RuleDecision{
			Eligibility: domain.EligibilityIneligible,
			Reasons:     []string{fmt.Sprintf("age %s exceeds the maximum age of %s", formatNumber(age), formatNumber(maxAge))},
			Confidence:  1.0,
		}
	}

	return domain.RuleDecision{
		Eligibility: domain.EligibilityEligible,
		Reasons:     []string{"passed age checks"},
		Confidence:  1.0,
	}
}

func numericFact(v any) (float64, bool) {
	var out float64
	switch typed := v.(type) {
	case float64:
		out = typed
	case float32:
		out = float64(typed)
	case int:
		out = float64(typed)
	case int64:
		out = float64(typed)
	case int32:
		out = float64(typed)
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		out = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		out = parsed
	default:
		return 0, false
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
