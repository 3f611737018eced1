package usecase

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

var adultBounds = domain.ExtractedConstraints{domain.ConstraintMinAge: 18, domain.ConstraintMaxAge: 65}

func TestEvaluateRulesEligible(t *testing.T) {
	got := EvaluateRules(adultBounds, domain.ApplicantFacts{"age": 46})
	want := domain.RuleDecision{
		Eligibility: domain.EligibilityEligible,
		Reasons:     []string{"passed age checks"},
		Confidence:  1.0,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("EvaluateRules() = %+v, want %+v", got, want)
	}
}

func TestEvaluateRulesMaxViolation(t *testing.T) {
	got := EvaluateRules(adultBounds, domain.ApplicantFacts{"age": 70.0})
	if got.Eligibility != domain.EligibilityIneligible {
		t.Fatalf("expected ineligible, got %+v", got)
	}
	if !reflect.DeepEqual(got.Reasons, []string{"age 70 exceeds the maximum age of 65"}) {
		t.Fatalf("unexpected reasons: %#v", got.Reasons)
	}
}

func TestEvaluateRulesMinCheckedFirst(t *testing.T) {
	inverted := domain.ExtractedConstraints{domain.ConstraintMinAge: 50, domain.ConstraintMaxAge: 40}
	got := EvaluateRules(inverted, domain.ApplicantFacts{"age": json.Number("45")})
	if !reflect.DeepEqual(got.Reasons, []string{"age 45 is below the minimum age of 50"}) {
		t.Fatalf("expected only the minimum violation, got %#v", got.Reasons)
	}
}

func TestEvaluateRulesMissingFact(t *testing.T) {
	got := EvaluateRules(adultBounds, domain.ApplicantFacts{})
	if got.Eligibility != domain.EligibilityUndetermined {
		t.Fatalf("expected undetermined, got %+v", got)
	}
	if got.Confidence >= 1.0 {
		t.Fatalf("expected reduced confidence, got %v", got.Confidence)
	}
	if !reflect.DeepEqual(got.Reasons, []string{"missing applicant fact: age"}) {
		t.Fatalf("unexpected reasons: %#v", got.Reasons)
	}
}

func TestEvaluateRulesNonNumericFact(t *testing.T) {
	got := EvaluateRules(adultBounds, domain.ApplicantFacts{"age": "forty"})
	if got.Eligibility != domain.EligibilityUndetermined || got.Confidence >= 1.0 {
		t.Fatalf("expected undetermined with reduced confidence, got %+v", got)
	}
}

func TestEvaluateRulesWithoutBounds(t *testing.T) {
	got := EvaluateRules(domain.ExtractedConstraints{}, domain.ApplicantFacts{"age": "17"})
	if got.Eligibility != domain.EligibilityEligible {
		t.Fatalf("expected eligible without bounds, got %+v", got)
	}
}
