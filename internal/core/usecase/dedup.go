package usecase

import "github.com/kirillkom/grounded-rag/internal/core/domain"

// DedupFragments keeps one fragment per trimmed text in first-seen order.
// Metadata missing on the first occurrence is filled from later duplicates.
// Fragments with blank text carry no evidence and are dropped.
func DedupFragments(fragments []domain.Fragment) []domain.Fragment {
	positions := make(map[string]int, len(fragments))
	out := make([]domain.Fragment, 0, len(fragments))
	for _, fragment := range fragments {
		key := fragment.Key()
		if key == "" {
			continue
		}
		if pos, ok := positions[key]; ok {
			out[pos] = preferRicherFragment(out[pos], fragment)
			continue
		}
		positions[key] = len(out)
		out = append(out, fragment)
	}
	return out
}

func preferRicherFragment(current, candidate domain.Fragment) domain.Fragment {
	if current.DocumentID == "" && candidate.DocumentID != "" {
		current.DocumentID = candidate.DocumentID
	}
	if current.Source == "" && candidate.Source != "" {
		current.Source = candidate.Source
	}
	if current.Section == "" && candidate.Section != "" {
		current.Section = candidate.Section
	}
	if current.Page == 0 && candidate.Page != 0 {
		current.Page = candidate.Page
	}
	if len(current.Tags) == 0 && len(candidate.Tags) > 0 {
		current.Tags = append([]string(nil), candidate.Tags...)
	}
	return current
}
