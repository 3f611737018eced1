package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const evidencePreviewRunes = 200

// PipelineUseCase answers a question from retrieved evidence and optionally decides eligibility.
type PipelineUseCase struct {
	expander    *QueryExpander
	fanOut      *FanOutRetriever
	reranker    *Reranker
	synthesizer *Synthesizer
	observer    ports.PipelineObserver
	opts        Options
}

func NewPipelineUseCase(
	oracle ports.Oracle,
	retriever ports.Retriever,
	observer ports.PipelineObserver,
	opts Options,
) *PipelineUseCase {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	opts = opts.normalize()
	return &PipelineUseCase{
		expander: NewQueryExpander(oracle, observer, opts.ExpandVariants, RetryPolicy{
			Attempts:    opts.ExpandAttempts,
			BackoffStep: opts.BackoffStep,
		}),
		fanOut: NewFanOutRetriever(retriever, observer, opts.FanOutWorkers),
		reranker: NewReranker(oracle, observer, RetryPolicy{
			Attempts:    opts.RerankAttempts,
			BackoffStep: opts.BackoffStep,
		}, opts.RerankCharBudget),
		synthesizer: NewSynthesizer(oracle, observer, RetryPolicy{
			Attempts:    opts.SynthesisAttempts,
			BackoffStep: opts.BackoffStep,
		}, opts.NotFoundAnswer),
		observer: observer,
		opts:     opts,
	}
}

func (uc *PipelineUseCase) Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("query is required"))
	}
	topKPerQuery := req.TopKPerQuery
	if topKPerQuery <= 0 {
		topKPerQuery = uc.opts.TopKPerQuery
	}
	topKFinal := req.TopKFinal
	if topKFinal <= 0 {
		topKFinal = uc.opts.TopKFinal
	}

	started := time.Now()
	queries := uc.expander.Expand(ctx, query)
	uc.observer.ObserveStage("expand", time.Since(started))

	started = time.Now()
	batch, err := uc.fanOut.RetrieveAll(ctx, queries, topKPerQuery)
	uc.observer.ObserveStage("retrieve", time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("retrieve fragments: %w", err)
	}

	candidates := DedupFragments(batch.Fragments)
	diagnostics := domain.Diagnostics{
		ExpandedQueries: queries,
		FailedQueries:   batch.Failures,
		CandidateCount:  len(candidates),
	}

	if len(candidates) == 0 {
		slog.Info("pipeline_short_circuit", "query", query, "expanded_queries", len(queries))
		uc.observer.ObserveShortCircuit()
		return &domain.QueryResult{
			Answer:      uc.opts.NotFoundAnswer,
			Evidence:    []string{},
			EvidenceMap: map[string]domain.EvidenceSource{},
			Constraints: domain.ExtractedConstraints{},
			Diagnostics: diagnostics,
		}, nil
	}

	started = time.Now()
	ranked, rankingDegraded := uc.reranker.rank(ctx, query, candidates)
	uc.observer.ObserveStage("rerank", time.Since(started))
	if len(ranked) > topKFinal {
		ranked = ranked[:topKFinal]
	}

	started = time.Now()
	answer, synthesisDegraded := uc.synthesizer.synthesize(ctx, query, ranked)
	uc.observer.ObserveStage("synthesize", time.Since(started))

	constraints := ExtractConstraints(ranked)

	var decision *domain.RuleDecision
	if req.Facts != nil {
		evaluated := EvaluateRules(constraints, req.Facts)
		decision = &evaluated
		uc.observer.ObserveDecision(decision)
	}

	diagnostics.RankingDegraded = rankingDegraded
	diagnostics.SynthesisDegraded = synthesisDegraded

	return &domain.QueryResult{
		Answer:      answer.Answer,
		Explanation: answer.Explanation,
		Evidence:    answer.Evidence,
		EvidenceMap: buildEvidenceMap(ranked),
		Constraints: constraints,
		Decision:    decision,
		Diagnostics: diagnostics,
	}, nil
}

// buildEvidenceMap maps every reference label in the ranked window to its source.
func buildEvidenceMap(ranked []domain.ScoredFragment) map[string]domain.EvidenceSource {
	out := make(map[string]domain.EvidenceSource, len(ranked))
	for i, item := range ranked {
		out[referenceLabel(i+1)] = domain.EvidenceSource{
			DocumentID: item.DocumentID,
			Source:     item.Source,
			Section:    item.Section,
			Page:       item.Page,
			Score:      item.Score,
			Preview:    preview(item.Key(), evidencePreviewRunes),
		}
	}
	return out
}

func preview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return truncateRunes(text, limit) + "..."
}
