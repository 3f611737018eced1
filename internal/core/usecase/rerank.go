package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const (
	rerankSystemPrompt = "You are a relevance scoring system. Reply with JSON only."

	fallbackScoreStep  = 0.05
	fallbackScoreFloor = 0.001
)

// Reranker scores fragments against the original query with one oracle call.
type Reranker struct {
	oracle     ports.Oracle
	observer   ports.PipelineObserver
	policy     RetryPolicy
	charBudget int
}

func NewReranker(oracle ports.Oracle, observer ports.PipelineObserver, policy RetryPolicy, charBudget int) *Reranker {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if charBudget <= 0 {
		charBudget = DefaultOptions().RerankCharBudget
	}
	return &Reranker{
		oracle:     oracle,
		observer:   observer,
		policy:     policy,
		charBudget: charBudget,
	}
}

// Rerank returns the fragments ordered by descending score, ties kept in input order.
func (r *Reranker) Rerank(ctx context.Context, query string, fragments []domain.Fragment) []domain.ScoredFragment {
	scored, _ := r.rank(ctx, query, fragments)
	return scored
}

func (r *Reranker) rank(ctx context.Context, query string, fragments []domain.Fragment) ([]domain.ScoredFragment, bool) {
	if len(fragments) == 0 {
		return []domain.ScoredFragment{}, false
	}

	raw, ok := decodeStructured(ctx, r.oracle, r.observer, decodeRequest{
		operation: "rerank",
		prompt:    buildRerankPrompt(query, fragments, r.charBudget),
		system:    rerankSystemPrompt,
		shape:     shapeNumberList,
		policy:    r.policy,
	}, func(scores []json.RawMessage) error {
		if len(scores) != len(fragments) {
			return fmt.Errorf("score count mismatch: got %d, want %d", len(scores), len(fragments))
		}
		return nil
	})
	if !ok {
		slog.Warn("rerank_fallback", "fragments", len(fragments))
		r.observer.ObserveFallback("rerank")
		return fallbackRanking(fragments), true
	}

	scored := make([]domain.ScoredFragment, len(fragments))
	for i, fragment := range fragments {
		scored[i] = domain.ScoredFragment{
			Fragment: fragment,
			Score:    coerceScore(raw[i]),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, false
}

// fallbackRanking keeps input order with strictly decreasing synthetic scores:
// 1-0.05*i while above the floor, then floor/n for the n-th position past it.
func fallbackRanking(fragments []domain.Fragment) []domain.ScoredFragment {
	out := make([]domain.ScoredFragment, len(fragments))
	tail := 0
	for i, fragment := range fragments {
		score := 1.0 - fallbackScoreStep*float64(i)
		if score <= fallbackScoreFloor {
			tail++
			score = fallbackScoreFloor / float64(tail)
		}
		out[i] = domain.ScoredFragment{
			Fragment: fragment,
			Score:    score,
		}
	}
	return out
}

// coerceScore maps any non-numeric score to 0 and clamps the rest to [0, 1].
func coerceScore(raw json.RawMessage) float64 {
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0
		}
		value = parsed
	}
	switch {
	case math.IsNaN(value), value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}

func buildRerankPrompt(query string, fragments []domain.Fragment, charBudget int) string {
	var sb strings.Builder
	sb.WriteString("Score how relevant each document is to the query, from 0.0 (irrelevant) to 1.0 (directly answers it).\n\n")
	sb.WriteString("Query:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nDocuments:\n")
	for i, fragment := range fragments {
		sb.WriteString(fmt.Sprintf("[%d] %s\n\n", i, truncateRunes(fragment.Key(), charBudget)))
	}
	sb.WriteString(fmt.Sprintf(
		"Return a JSON array of exactly %d numbers, one per document, in the same order. No markdown, no keys.\n",
		len(fragments),
	))
	return sb.String()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
