package usecase

import (
	"reflect"
	"testing"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

func TestExtractConstraints(t *testing.T) {
	cases := []struct {
		name  string
		texts []string
		want  domain.ExtractedConstraints
	}{
		{
			name:  "between range",
			texts: []string{"The applicant age is between 18 and 65 at policy start."},
			want:  domain.ExtractedConstraints{domain.ConstraintMinAge: 18, domain.ConstraintMaxAge: 65},
		},
		{
			name:  "aged to range",
			texts: []string{"Applicants aged 18 to 65 are covered."},
			want:  domain.ExtractedConstraints{domain.ConstraintMinAge: 18, domain.ConstraintMaxAge: 65},
		},
		{
			name:  "maximum only",
			texts: []string{"The Maximum age is 60."},
			want:  domain.ExtractedConstraints{domain.ConstraintMaxAge: 60},
		},
		{
			name:  "minimum and maximum across fragments",
			texts: []string{"Minimum entry age: 21 years.", "Age must be no older than 70 on renewal."},
			want:  domain.ExtractedConstraints{domain.ConstraintMinAge: 21, domain.ConstraintMaxAge: 70},
		},
		{
			name:  "last single-sided match wins",
			texts: []string{"Maximum age 60 for plan A.", "Maximum age 75 for plan B."},
			want:  domain.ExtractedConstraints{domain.ConstraintMaxAge: 75},
		},
		{
			name:  "range takes precedence",
			texts: []string{"Minimum age 30.", "Ages 18-65 inclusive."},
			want:  domain.ExtractedConstraints{domain.ConstraintMinAge: 18, domain.ConstraintMaxAge: 65},
		},
		{
			name:  "reversed range",
			texts: []string{"age between 65 and 18"},
			want:  domain.ExtractedConstraints{domain.ConstraintMinAge: 18, domain.ConstraintMaxAge: 65},
		},
		{
			name:  "single-sided bound next to unrelated count",
			texts: []string{"The maximum age is 60 and 2 claims per year are allowed."},
			want:  domain.ExtractedConstraints{domain.ConstraintMaxAge: 60},
		},
		{
			name:  "hyphenated age compound is not a range",
			texts: []string{"Age-related conditions are excluded for 2 to 3 years."},
			want:  domain.ExtractedConstraints{},
		},
		{
			name:  "years after each bound",
			texts: []string{"Applicants aged 18 years to 65 years are covered."},
			want:  domain.ExtractedConstraints{domain.ConstraintMinAge: 18, domain.ConstraintMaxAge: 65},
		},
		{
			name:  "colon connector",
			texts: []string{"Eligible ages: 21 to 60."},
			want:  domain.ExtractedConstraints{domain.ConstraintMinAge: 21, domain.ConstraintMaxAge: 60},
		},
		{
			name:  "sentence break before numbers",
			texts: []string{"No age checks apply. Deductible 10 to 20 percent."},
			want:  domain.ExtractedConstraints{},
		},
		{
			name:  "no match",
			texts: []string{"Waiting period is 90 days."},
			want:  domain.ExtractedConstraints{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractConstraints(scored(tc.texts...))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractConstraints() = %#v, want %#v", got, tc.want)
			}
		})
	}
}
