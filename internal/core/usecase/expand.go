package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const expandSystemPrompt = "You rewrite questions into search queries for a document retrieval system. Reply with JSON only."

// QueryExpander widens recall by asking the oracle for narrower and broader query variants.
type QueryExpander struct {
	oracle   ports.Oracle
	observer ports.PipelineObserver
	variants int
	policy   RetryPolicy
}

func NewQueryExpander(oracle ports.Oracle, observer ports.PipelineObserver, variants int, policy RetryPolicy) *QueryExpander {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if variants <= 0 {
		variants = DefaultOptions().ExpandVariants
	}
	return &QueryExpander{
		oracle:   oracle,
		observer: observer,
		variants: variants,
		policy:   policy,
	}
}

// Expand returns the original query followed by up to the configured number of distinct variants.
// It never fails: on exhausted retries the set holds only the original query.
func (e *QueryExpander) Expand(ctx context.Context, query string) []string {
	query = strings.TrimSpace(query)
	out := []string{query}

	variants, ok := decodeStructured(ctx, e.oracle, e.observer, decodeRequest{
		operation: "expand",
		prompt:    buildExpandPrompt(query, e.variants),
		system:    expandSystemPrompt,
		shape:     shapeStringList,
		policy:    e.policy,
	}, validateVariants)
	if !ok {
		e.observer.ObserveFallback("expand")
		return out
	}

	seen := map[string]struct{}{strings.ToLower(query): {}}
	for _, variant := range variants {
		variant = strings.TrimSpace(variant)
		key := strings.ToLower(variant)
		if variant == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, variant)
		if len(out) > e.variants {
			break
		}
	}
	return out
}

func validateVariants(variants []string) error {
	for _, v := range variants {
		if strings.TrimSpace(v) != "" {
			return nil
		}
	}
	return errors.New("no usable query variants")
}

func buildExpandPrompt(query string, variants int) string {
	narrower := variants / 2
	broader := variants - narrower
	return fmt.Sprintf(`Rewrite the question below into exactly %d search queries:
%d narrower (more specific) and %d broader (more general) variants.
Return a flat JSON array of %d strings. No markdown, no keys, no commentary.

Question:
%s
`, variants, narrower, broader, variants, query)
}
