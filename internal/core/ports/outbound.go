package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

// Oracle is a generative model. Output carries no structural guarantee.
type Oracle interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes fragments and performs semantic search. Reads may run concurrently.
type VectorStore interface {
	Upsert(ctx context.Context, fragments []domain.Fragment, vectors [][]float32) error
	SimilaritySearch(ctx context.Context, queryVector []float32, topK int) ([]domain.Fragment, error)
}

// Retriever returns the top-K fragments for a query string.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]domain.Fragment, error)
}

// DocumentRepository persists and reads ingestion status.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveClassification(ctx context.Context, id string, cls domain.Classification) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentClassifier assigns a category and tags to extracted document text.
type DocumentClassifier interface {
	Classify(ctx context.Context, text string) (domain.Classification, error)
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// PipelineObserver receives pipeline telemetry. Implementations must be safe for concurrent use.
type PipelineObserver interface {
	ObserveStage(stage string, duration time.Duration)
	ObserveDecodeAttempts(operation string, attempts int, ok bool)
	ObserveFallback(stage string)
	ObserveRetrievalFailures(count int)
	ObserveShortCircuit()
	ObserveDecision(decision *domain.RuleDecision)
}

// NopObserver discards all pipeline telemetry.
type NopObserver struct{}

func (NopObserver) ObserveStage(string, time.Duration) {}
func (NopObserver) ObserveDecodeAttempts(string, int, bool) {}
func (NopObserver) ObserveFallback(string) {}
func (NopObserver) ObserveRetrievalFailures(int) {}
func (NopObserver) ObserveShortCircuit() {}
func (NopObserver) ObserveDecision(*domain.RuleDecision) {}
