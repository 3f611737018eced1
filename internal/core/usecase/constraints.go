package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

var (
	// A range needs a connector before the first number ("between 18 and 65", "of 18-65", ": 18 to 65")
	// or a dash or "to" directly between the numbers ("18 years to 65 years").
	ageRangePattern = regexp.MustCompile(
		`\bage[sd]?\b([^0-9\n]{0,40}?)` +
			`(?:(?:\b(?:between|from|of)\s+|:\s*)(\d{1,3})(?:\s*years?)?\s*(?:-|–|to|and)\s*(\d{1,3})` +
			`|(\d{1,3})(?:\s*years?)?\s*(?:-|–|to)\s*(\d{1,3}))\b`,
	)
	// rangeGapRejects marks text between "age" and the numbers that belongs to something else:
	// hyphenated compounds ("age-related"), single-sided keywords, or a sentence break.
	rangeGapRejects = regexp.MustCompile(`^-|\b(?:max|min)(?:imum)?\b|[.;]`)

	minAgePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:minimum|min\.?)\s+(?:entry\s+)?age\b\D{0,20}?(\d{1,3})`),
		regexp.MustCompile(`\bage[sd]?\b\D{0,20}?(?:at least|not less than|minimum of|no younger than)\s+(\d{1,3})`),
	}
	maxAgePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:maximum|max\.?)\s+(?:entry\s+)?age\b\D{0,20}?(\d{1,3})`),
		regexp.MustCompile(`\bage[sd]?\b\D{0,20}?(?:at most|not more than|maximum of|no older than|up to)\s+(\d{1,3})`),
	}
)

// ExtractConstraints mines age bounds from the fragment text.
// A range phrase sets both bounds and takes precedence; otherwise the last single-sided match wins.
func ExtractConstraints(fragments []domain.ScoredFragment) domain.ExtractedConstraints {
	out := domain.ExtractedConstraints{}
	if len(fragments) == 0 {
		return out
	}

	parts := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		parts = append(parts, strings.ToLower(fragment.Key()))
	}
	text := strings.Join(parts, "\n")

	if lo, hi, ok := lastAgeRange(text); ok {
		if lo > hi {
			lo, hi = hi, lo
		}
		out[domain.ConstraintMinAge] = lo
		out[domain.ConstraintMaxAge] = hi
		return out
	}

	if v, ok := lastBound(text, minAgePatterns); ok {
		out[domain.ConstraintMinAge] = v
	}
	if v, ok := lastBound(text, maxAgePatterns); ok {
		out[domain.ConstraintMaxAge] = v
	}
	if lo, okLo := out[domain.ConstraintMinAge]; okLo {
		if hi, okHi := out[domain.ConstraintMaxAge]; okHi && lo > hi {
			out[domain.ConstraintMinAge], out[domain.ConstraintMaxAge] = hi, lo
		}
	}
	return out
}

func lastAgeRange(text string) (float64, float64, bool) {
	var lo, hi float64
	found := false
	for _, m := range ageRangePattern.FindAllStringSubmatchIndex(text, -1) {
		if rangeGapRejects.MatchString(text[m[2]:m[3]]) {
			continue
		}
		loIdx, hiIdx := 4, 6
		if m[loIdx] < 0 {
			loIdx, hiIdx = 8, 10
		}
		l, errLo := strconv.ParseFloat(text[m[loIdx]:m[loIdx+1]], 64)
		h, errHi := strconv.ParseFloat(text[m[hiIdx]:m[hiIdx+1]], 64)
		if errLo != nil || errHi != nil {
			continue
		}
		lo, hi, found = l, h, true
	}
	return lo, hi, found
}

// lastBound returns the value of the match that starts last across all patterns.
func lastBound(text string, patterns []*regexp.Regexp) (float64, bool) {
	bestPos := -1
	var best float64
	for _, pattern := range patterns {
		for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
			if loc[0] < bestPos {
				continue
			}
			v, err := strconv.ParseFloat(text[loc[2]:loc[3]], 64)
			if err != nil {
				continue
			}
			bestPos = loc[0]
			best = v
		}
	}
	return best, bestPos >= 0
}
