package domain

import "strings"

// Fragment is one retrieved unit of evidence. Identity is the trimmed text.
type Fragment struct {
	DocumentID string   `json:"document_id"`
	Source     string   `json:"source,omitempty"`
	Section    string   `json:"section,omitempty"`
	Page       int      `json:"page,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Text       string   `json:"text"`
}

func (f Fragment) Key() string {
	return strings.TrimSpace(f.Text)
}

type ScoredFragment struct {
	Fragment
	Score float64 `json:"score"`
}

type StructuredAnswer struct {
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
	Evidence    []string `json:"evidence"`
}

type EvidenceSource struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source,omitempty"`
	Section    string  `json:"section,omitempty"`
	Page       int     `json:"page,omitempty"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview"`
}

type QueryFailure struct {
	Query string `json:"query"`
	Error string `json:"error"`
}

// RetrievalBatch is the unmerged output of one fan-out; Fragments may contain duplicates.
type RetrievalBatch struct {
	Fragments []Fragment
	Failures  []QueryFailure
}

type QueryRequest struct {
	Query        string
	Facts        ApplicantFacts
	TopKPerQuery int
	TopKFinal    int
}

type Diagnostics struct {
	ExpandedQueries   []string       `json:"expanded_queries"`
	FailedQueries     []QueryFailure `json:"failed_queries,omitempty"`
	CandidateCount    int            `json:"candidate_count"`
	RankingDegraded   bool           `json:"ranking_degraded"`
	SynthesisDegraded bool           `json:"synthesis_degraded"`
}

type QueryResult struct {
	Answer      string                    `json:"answer"`
	Explanation string                    `json:"explanation"`
	Evidence    []string                  `json:"evidence"`
	EvidenceMap map[string]EvidenceSource `json:"evidence_map"`
	Constraints ExtractedConstraints      `json:"constraints"`
	Decision    *RuleDecision             `json:"decision"`
	Diagnostics Diagnostics               `json:"diagnostics"`
}
