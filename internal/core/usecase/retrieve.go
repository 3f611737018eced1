package usecase

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

// VectorRetriever embeds the query and searches the vector index.
// Index and embedding failures are returned as-is; retries are not attempted here.
type VectorRetriever struct {
	embedder ports.Embedder
	store    ports.VectorStore
}

func NewVectorRetriever(embedder ports.Embedder, store ports.VectorStore) *VectorRetriever {
	return &VectorRetriever{
		embedder: embedder,
		store:    store,
	}
}

func (r *VectorRetriever) Search(ctx context.Context, query string, topK int) ([]domain.Fragment, error) {
	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.store.SimilaritySearch(ctx, queryVector, topK)
}

// FanOutRetriever runs one search per expanded query on a bounded task group.
type FanOutRetriever struct {
	retriever  ports.Retriever
	observer   ports.PipelineObserver
	maxWorkers int
}

func NewFanOutRetriever(retriever ports.Retriever, observer ports.PipelineObserver, maxWorkers int) *FanOutRetriever {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if maxWorkers <= 0 {
		maxWorkers = DefaultOptions().FanOutWorkers
	}
	return &FanOutRetriever{
		retriever:  retriever,
		observer:   observer,
		maxWorkers: maxWorkers,
	}
}

// RetrieveAll isolates per-query failures. It fails only when every query failed.
// Fragments are concatenated in query order; duplicates are kept.
func (f *FanOutRetriever) RetrieveAll(ctx context.Context, queries []string, topK int) (domain.RetrievalBatch, error) {
	if len(queries) == 0 {
		return domain.RetrievalBatch{}, nil
	}

	results := make([][]domain.Fragment, len(queries))
	errs := make([]error, len(queries))

	var group errgroup.Group
	group.SetLimit(min(f.maxWorkers, len(queries)))
	for i, query := range queries {
		group.Go(func() error {
			fragments, err := f.retriever.Search(ctx, query, topK)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = fragments
			return nil
		})
	}
	_ = group.Wait()

	batch := domain.RetrievalBatch{}
	for i, query := range queries {
		if errs[i] != nil {
			slog.Warn("retrieval_query_failed", "query", query, "error", errs[i])
			batch.Failures = append(batch.Failures, domain.QueryFailure{
				Query: query,
				Error: errs[i].Error(),
			})
			continue
		}
		batch.Fragments = append(batch.Fragments, results[i]...)
	}

	if len(batch.Failures) > 0 {
		f.observer.ObserveRetrievalFailures(len(batch.Failures))
	}
	if len(batch.Failures) == len(queries) {
		return batch, domain.WrapError(domain.ErrRetrievalUnavailable, "retrieve all", errors.Join(errs...))
	}
	return batch, nil
}
