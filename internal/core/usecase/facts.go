package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

var agePhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{1,3})\s*[- ]?\s*(?:year|yr)s?[- ]old\b`),
	regexp.MustCompile(`\b(\d{1,3})\s*(?:y/o|yo)\b`),
	regexp.MustCompile(`\bage[d]?\s*(?:of|is|:)?\s*(\d{1,3})\b`),
}

// InferApplicantFacts pulls applicant facts out of the question text.
// The result is never nil; an empty map means nothing was recognized.
func InferApplicantFacts(query string) domain.ApplicantFacts {
	facts := domain.ApplicantFacts{}
	text := strings.ToLower(query)
	for _, pattern := range agePhrasePatterns {
		match := pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		age, err := strconv.Atoi(match[1])
		if err != nil || age <= 0 || age > 130 {
			continue
		}
		facts[domain.FactAge] = float64(age)
		break
	}
	return facts
}

// ResolveApplicantFacts merges inferred facts under the supplied ones when infer is set.
// Supplied values always win. The result is nil when nothing was supplied or inferred.
func ResolveApplicantFacts(query string, supplied domain.ApplicantFacts, infer bool) domain.ApplicantFacts {
	if !infer {
		return supplied
	}
	inferred := InferApplicantFacts(query)
	if len(inferred) == 0 {
		return supplied
	}
	out := make(domain.ApplicantFacts, len(supplied)+len(inferred))
	for key, value := range inferred {
		out[key] = value
	}
	for key, value := range supplied {
		out[key] = value
	}
	return out
}
