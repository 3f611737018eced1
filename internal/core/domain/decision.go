package domain

const (
	ConstraintMinAge = "min_age"
	ConstraintMaxAge = "max_age"

	FactAge = "age"
)

// ExtractedConstraints maps a constraint name to its numeric bound.
type ExtractedConstraints map[string]float64

// ApplicantFacts holds caller-supplied facts. A nil map means no facts were supplied.
type ApplicantFacts map[string]any

type Eligibility string

const (
	EligibilityEligible     Eligibility = "eligible"
	EligibilityIneligible   Eligibility = "ineligible"
	EligibilityUndetermined Eligibility = "undetermined"
)

type RuleDecision struct {
	Eligibility Eligibility `json:"eligibility"`
	Reasons     []string    `json:"reasons"`
	Confidence  float64     `json:"confidence"`
}
