package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

// ProcessDocumentUseCase moves one document through pending -> processing -> ready|error.
// The queue consumer is the single writer per document.
type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	extractor  ports.TextExtractor
	classifier ports.DocumentClassifier
	chunker    ports.Chunker
	embedder   ports.Embedder
	vectorDB   ports.VectorStore
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		extractor:  extractor,
		classifier: classifier,
		chunker:    chunker,
		embedder:   embedder,
		vectorDB:   vectorDB,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	started := time.Now()
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(doc.Status, domain.StatusProcessing) {
		return domain.WrapError(
			domain.ErrInvalidTransition,
			"process document",
			fmt.Errorf("%s -> %s", doc.Status, domain.StatusProcessing),
		)
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	classification, fragments, err := uc.processPipeline(ctx, doc)
	if err == nil {
		err = uc.persistClassification(ctx, doc.ID, classification)
	}
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	slog.Info("document_processed",
		"document_id", documentID,
		"fragments", fragments,
		"category", classification.Category,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, doc *domain.Document) (domain.Classification, int, error) {
	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return domain.Classification{}, 0, err
	}

	classification := uc.classify(ctx, doc.ID, text)

	chunks, err := uc.chunk(text)
	if err != nil {
		return domain.Classification{}, 0, err
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return domain.Classification{}, 0, err
	}

	fragments := annotateFragments(doc, chunks, classification)
	if err := uc.index(ctx, fragments, vectors); err != nil {
		return domain.Classification{}, 0, err
	}

	return classification, len(fragments), nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

// classify degrades to an empty classification; tagging never fails ingestion.
func (uc *ProcessDocumentUseCase) classify(ctx context.Context, documentID, text string) domain.Classification {
	if uc.classifier == nil {
		return domain.Classification{Tags: []string{}}
	}
	classification, err := uc.classifier.Classify(ctx, text)
	if err != nil {
		slog.Warn("document_classification_failed", "document_id", documentID, "error", err)
		return domain.Classification{Tags: []string{}}
	}
	return classification
}

func (uc *ProcessDocumentUseCase) chunk(text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) index(ctx context.Context, fragments []domain.Fragment, vectors [][]float32) error {
	if err := uc.vectorDB.Upsert(ctx, fragments, vectors); err != nil {
		return fmt.Errorf("upsert fragments in vector db: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) persistClassification(ctx context.Context, documentID string, classification domain.Classification) error {
	if err := uc.repo.SaveClassification(ctx, documentID, classification); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusError, processErr.Error())
}

// annotateFragments builds new fragment values; the document and chunks are not modified.
func annotateFragments(doc *domain.Document, chunks []string, cls domain.Classification) []domain.Fragment {
	out := make([]domain.Fragment, 0, len(chunks))
	for i, text := range chunks {
		var tags []string
		if cls.Category != "" {
			tags = append(tags, cls.Category)
		}
		tags = append(tags, cls.Tags...)
		out = append(out, domain.Fragment{
			DocumentID: doc.ID,
			Source:     doc.Filename,
			Section:    "chunk " + strconv.Itoa(i+1),
			Tags:       tags,
			Text:       text,
		})
	}
	return out
}
