package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const namespace = "grag"

// PipelineMetrics implements ports.PipelineObserver on Prometheus collectors.
type PipelineMetrics struct {
	service string

	stageDuration     *prometheus.HistogramVec
	decodeAttempts    *prometheus.HistogramVec
	fallbackTotal     *prometheus.CounterVec
	retrievalFailures *prometheus.CounterVec
	shortCircuitTotal *prometheus.CounterVec
	decisionTotal     *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"service", "stage"},
	)
	decodeAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "decode_attempts",
			Help:      "Oracle calls needed to obtain a structured reply.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service", "operation", "ok"},
	)
	fallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "fallback_total",
			Help:      "Stages that degraded to their fallback output.",
		},
		[]string{"service", "stage"},
	)
	retrievalFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "retrieval_failures_total",
			Help:      "Expanded queries whose retrieval failed.",
		},
		[]string{"service"},
	)
	shortCircuitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "short_circuit_total",
			Help:      "Requests answered without evidence.",
		},
		[]string{"service"},
	)
	decisionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Rule decisions by eligibility.",
		},
		[]string{"service", "eligibility"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while an operation's circuit breaker is open, 0.5 when half-open.",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(
		stageDuration,
		decodeAttempts,
		fallbackTotal,
		retrievalFailures,
		shortCircuitTotal,
		decisionTotal,
		breakerState,
	)

	return &PipelineMetrics{
		service:           service,
		stageDuration:     stageDuration,
		decodeAttempts:    decodeAttempts,
		fallbackTotal:     fallbackTotal,
		retrievalFailures: retrievalFailures,
		shortCircuitTotal: shortCircuitTotal,
		decisionTotal:     decisionTotal,
		breakerState:      breakerState,
	}
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveDecodeAttempts(operation string, attempts int, ok bool) {
	m.decodeAttempts.WithLabelValues(m.service, operation, strconv.FormatBool(ok)).Observe(float64(attempts))
}

func (m *PipelineMetrics) ObserveFallback(stage string) {
	m.fallbackTotal.WithLabelValues(m.service, stage).Inc()
}

func (m *PipelineMetrics) ObserveRetrievalFailures(count int) {
	if count <= 0 {
		return
	}
	m.retrievalFailures.WithLabelValues(m.service).Add(float64(count))
}

func (m *PipelineMetrics) ObserveShortCircuit() {
	m.shortCircuitTotal.WithLabelValues(m.service).Inc()
}

func (m *PipelineMetrics) ObserveDecision(decision *domain.RuleDecision) {
	eligibility := "none"
	if decision != nil {
		eligibility = string(decision.Eligibility)
	}
	m.decisionTotal.WithLabelValues(m.service, eligibility).Inc()
}

// ObserveBreakerState matches resilience.StateListener.
func (m *PipelineMetrics) ObserveBreakerState(operation, _, to string) {
	value := 0.0
	switch to {
	case "open":
		value = 1
	case "half-open":
		value = 0.5
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
