package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const referenceLabelPrefix = "reference #"

// Synthesizer answers strictly from the ranked evidence window.
type Synthesizer struct {
	oracle   ports.Oracle
	observer ports.PipelineObserver
	policy   RetryPolicy
	notFound string
}

func NewSynthesizer(oracle ports.Oracle, observer ports.PipelineObserver, policy RetryPolicy, notFound string) *Synthesizer {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if strings.TrimSpace(notFound) == "" {
		notFound = defaultNotFoundAnswer
	}
	return &Synthesizer{
		oracle:   oracle,
		observer: observer,
		policy:   policy,
		notFound: notFound,
	}
}

type synthesisPayload struct {
	Answer      string            `json:"answer"`
	Explanation string            `json:"explanation"`
	Evidence    []json.RawMessage `json:"evidence"`
}

// Synthesize never fails. Exhausted retries yield the not-found answer with no evidence.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, ranked []domain.ScoredFragment) domain.StructuredAnswer {
	answer, _ := s.synthesize(ctx, query, ranked)
	return answer
}

func (s *Synthesizer) synthesize(ctx context.Context, query string, ranked []domain.ScoredFragment) (domain.StructuredAnswer, bool) {
	payload, ok := decodeStructured(ctx, s.oracle, s.observer, decodeRequest{
		operation: "synthesize",
		prompt:    buildSynthesisPrompt(query, ranked, s.notFound),
		system:    synthesisSystemPrompt(s.notFound),
		shape:     shapeObject,
		policy:    s.policy,
	}, func(p synthesisPayload) error {
		if strings.TrimSpace(p.Answer) == "" {
			return errors.New("answer is empty")
		}
		return nil
	})
	if !ok {
		slog.Warn("synthesis_fallback", "fragments", len(ranked))
		s.observer.ObserveFallback("synthesize")
		return s.notFoundAnswer(), true
	}

	answer := strings.TrimSpace(payload.Answer)
	if answer == s.notFound {
		return s.notFoundAnswer(), false
	}
	return domain.StructuredAnswer{
		Answer:      answer,
		Explanation: strings.TrimSpace(payload.Explanation),
		Evidence:    normalizeEvidence(payload.Evidence, len(ranked)),
	}, false
}

func (s *Synthesizer) notFoundAnswer() domain.StructuredAnswer {
	return domain.StructuredAnswer{
		Answer:      s.notFound,
		Explanation: "",
		Evidence:    []string{},
	}
}

// normalizeEvidence keeps references inside 1..window, deduplicated in the order cited.
func normalizeEvidence(raw []json.RawMessage, window int) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[int]struct{}, len(raw))
	for _, item := range raw {
		idx, ok := evidenceIndex(item)
		if !ok || idx < 1 || idx > window {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, referenceLabel(idx))
	}
	return out
}

func evidenceIndex(raw json.RawMessage) (int, bool) {
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		if number != float64(int(number)) {
			return 0, false
		}
		return int(number), true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, false
	}
	return referenceIndex(text)
}

func referenceLabel(idx int) string {
	return referenceLabelPrefix + strconv.Itoa(idx)
}

// referenceIndex reads the first run of digits, so "reference #2", "#2" and "2" all map to 2.
func referenceIndex(label string) (int, bool) {
	start := strings.IndexFunc(label, isDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(label) && isDigit(rune(label[end])) {
		end++
	}
	idx, err := strconv.Atoi(label[start:end])
	if err != nil {
		return 0, false
	}
	return idx, true
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func synthesisSystemPrompt(notFound string) string {
	return fmt.Sprintf(
		"You answer questions using only the evidence provided. "+
			"If the evidence does not contain the answer, set answer to exactly: %s "+
			"Reply with a single JSON object only.",
		notFound,
	)
}

func buildSynthesisPrompt(query string, ranked []domain.ScoredFragment, notFound string) string {
	var sb strings.Builder
	sb.WriteString("Evidence:\n\n")
	for i, item := range ranked {
		sb.WriteString("[")
		sb.WriteString(referenceLabel(i + 1))
		sb.WriteString("]")
		if item.Source != "" {
			sb.WriteString(" source=")
			sb.WriteString(item.Source)
		}
		if item.DocumentID != "" {
			sb.WriteString(" document=")
			sb.WriteString(item.DocumentID)
		}
		if item.Section != "" {
			sb.WriteString(" section=")
			sb.WriteString(item.Section)
		}
		if item.Page > 0 {
			sb.WriteString(" page=")
			sb.WriteString(strconv.Itoa(item.Page))
		}
		sb.WriteString("\n")
		sb.WriteString(item.Key())
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question:\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString(`Return JSON: {"answer": "...", "explanation": "...", "evidence": ["reference #1"]}.`)
	sb.WriteString("\nCite only the references listed above. If the answer is not in the evidence, the answer must be exactly: ")
	sb.WriteString(notFound)
	sb.WriteString("\n")
	return sb.String()
}
