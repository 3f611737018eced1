package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

// scriptedOracle replays responses in order and repeats the last one when the script runs out.
type scriptedOracle struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	systems   []string
}

func (o *scriptedOracle) Generate(_ context.Context, prompt, system string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx := len(o.prompts)
	o.prompts = append(o.prompts, prompt)
	o.systems = append(o.systems, system)
	if idx < len(o.errs) && o.errs[idx] != nil {
		return "", o.errs[idx]
	}
	if len(o.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	if idx >= len(o.responses) {
		idx = len(o.responses) - 1
	}
	return o.responses[idx], nil
}

func (o *scriptedOracle) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.prompts)
}

// routedOracle answers by matching the system instruction of each pipeline stage.
type routedOracle struct {
	mu     sync.Mutex
	routes map[string]string
	calls  map[string]int
}

func newRoutedOracle(routes map[string]string) *routedOracle {
	return &routedOracle{routes: routes, calls: map[string]int{}}
}

func (o *routedOracle) Generate(_ context.Context, _ string, system string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for marker, response := range o.routes {
		if strings.Contains(system, marker) {
			o.calls[marker]++
			return response, nil
		}
	}
	return "", errors.New("unrouted oracle call")
}

func (o *routedOracle) count(marker string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[marker]
}

type retrieverFake struct {
	mu      sync.Mutex
	byQuery map[string][]domain.Fragment
	errs    map[string]error
	topKs   []int
}

func (f *retrieverFake) Search(_ context.Context, query string, topK int) ([]domain.Fragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topKs = append(f.topKs, topK)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.byQuery[query], nil
}

type observerSpy struct {
	mu              sync.Mutex
	stages          []string
	fallbacks       []string
	decodes         map[string]int
	retrievalFailed int
	shortCircuits   int
	decisions       []domain.Eligibility
}

func (o *observerSpy) ObserveStage(stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *observerSpy) ObserveDecodeAttempts(operation string, attempts int, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.decodes == nil {
		o.decodes = map[string]int{}
	}
	o.decodes[operation] += attempts
}

func (o *observerSpy) ObserveFallback(stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, stage)
}

func (o *observerSpy) ObserveRetrievalFailures(count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retrievalFailed += count
}

func (o *observerSpy) ObserveShortCircuit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shortCircuits++
}

func (o *observerSpy) ObserveDecision(decision *domain.RuleDecision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, decision.Eligibility)
}

func noBackoff(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts}
}

func fragmentsOf(texts ...string) []domain.Fragment {
	out := make([]domain.Fragment, 0, len(texts))
	for i, text := range texts {
		out = append(out, domain.Fragment{DocumentID: "doc-" + string(rune('a'+i)), Text: text})
	}
	return out
}
