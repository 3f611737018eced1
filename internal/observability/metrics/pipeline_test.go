package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

var _ ports.PipelineObserver = (*PipelineMetrics)(nil)

func TestPipelineMetricsCounters(t *testing.T) {
	m := NewPipelineMetrics("grag-api", prometheus.NewRegistry())

	m.ObserveFallback("rerank")
	m.ObserveFallback("rerank")
	m.ObserveRetrievalFailures(3)
	m.ObserveRetrievalFailures(0)
	m.ObserveShortCircuit()
	m.ObserveDecision(&domain.RuleDecision{Eligibility: domain.EligibilityEligible})
	m.ObserveDecision(nil)
	m.ObserveStage("rerank", 120*time.Millisecond)
	m.ObserveDecodeAttempts("synthesize", 2, true)

	if got := testutil.ToFloat64(m.fallbackTotal.WithLabelValues("grag-api", "rerank")); got != 2 {
		t.Fatalf("fallback_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.retrievalFailures.WithLabelValues("grag-api")); got != 3 {
		t.Fatalf("retrieval_failures_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.shortCircuitTotal.WithLabelValues("grag-api")); got != 1 {
		t.Fatalf("short_circuit_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.decisionTotal.WithLabelValues("grag-api", "eligible")); got != 1 {
		t.Fatalf("eligible decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.decisionTotal.WithLabelValues("grag-api", "none")); got != 1 {
		t.Fatalf("none decisions = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.stageDuration); got != 1 {
		t.Fatalf("stage histogram series = %d, want 1", got)
	}
}

func TestBreakerStateGauge(t *testing.T) {
	m := NewPipelineMetrics("grag-api", prometheus.NewRegistry())

	m.ObserveBreakerState("ollama.generate", "closed", "open")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("grag-api", "ollama.generate")); got != 1 {
		t.Fatalf("breaker gauge = %v, want 1", got)
	}
	m.ObserveBreakerState("ollama.generate", "open", "half-open")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("grag-api", "ollama.generate")); got != 0.5 {
		t.Fatalf("breaker gauge = %v, want 0.5", got)
	}
	m.ObserveBreakerState("ollama.generate", "half-open", "closed")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("grag-api", "ollama.generate")); got != 0 {
		t.Fatalf("breaker gauge = %v, want 0", got)
	}
}
