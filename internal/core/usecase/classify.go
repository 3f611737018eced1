package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const (
	classifySystemPrompt = "You classify documents for a retrieval index. Reply with a single JSON object only."
	classifyTextRunes    = 4000
	maxDocumentTags      = 8
)

// DocumentTagger classifies document text with the oracle.
// Unusable output degrades to an empty classification; it never fails ingestion.
type DocumentTagger struct {
	oracle   ports.Oracle
	observer ports.PipelineObserver
	policy   RetryPolicy
}

func NewDocumentTagger(oracle ports.Oracle, observer ports.PipelineObserver, policy RetryPolicy) *DocumentTagger {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &DocumentTagger{
		oracle:   oracle,
		observer: observer,
		policy:   policy,
	}
}

func (t *DocumentTagger) Classify(ctx context.Context, text string) (domain.Classification, error) {
	cls, ok := decodeStructured(ctx, t.oracle, t.observer, decodeRequest{
		operation: "classify",
		prompt:    buildClassifyPrompt(text),
		system:    classifySystemPrompt,
		shape:     shapeObject,
		policy:    t.policy,
	}, func(c domain.Classification) error {
		if strings.TrimSpace(c.Category) == "" && len(c.Tags) == 0 {
			return errors.New("classification is empty")
		}
		return nil
	})
	if !ok {
		t.observer.ObserveFallback("classify")
		return domain.Classification{Tags: []string{}}, nil
	}
	return normalizeClassification(cls), nil
}

func normalizeClassification(cls domain.Classification) domain.Classification {
	out := domain.Classification{
		Category: strings.ToLower(strings.TrimSpace(cls.Category)),
		Tags:     make([]string, 0, len(cls.Tags)),
	}
	seen := make(map[string]struct{}, len(cls.Tags))
	for _, tag := range cls.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out.Tags = append(out.Tags, tag)
		if len(out.Tags) == maxDocumentTags {
			break
		}
	}
	return out
}

func buildClassifyPrompt(text string) string {
	excerpt := text
	if utf8.RuneCountInString(excerpt) > classifyTextRunes {
		excerpt = truncateRunes(excerpt, classifyTextRunes)
	}
	return `Classify the document below.
Return JSON: {"category": "<one lowercase word>", "tags": ["<short lowercase tag>", ...]} with at most 8 tags.

Document:
` + excerpt + "\n"
}
