package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

// Upload stores the file, records it as pending and queues it for processing.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}
	mediaType, err := resolveMediaType(filename, mimeType)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", err)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mediaType,
		StoragePath: storageKey,
		Status:      domain.StatusPending,
		Tags:        []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	// The row stays pending; re-publishing its id resumes processing.
	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		slog.Error("ingest_publish_failed", "document_id", doc.ID, "error", err)
		return nil, domain.WrapError(domain.ErrTemporary, "publish ingestion event", err)
	}

	return doc, nil
}

var textExtensions = map[string]struct{}{
	".txt":  {},
	".text": {},
	".md":   {},
	".csv":  {},
	".log":  {},
}

// resolveMediaType accepts text/* uploads. Generic binary types are accepted only for text file extensions.
func resolveMediaType(filename, mimeType string) (string, error) {
	mediaType := "application/octet-stream"
	if strings.TrimSpace(mimeType) != "" {
		parsed, _, err := mime.ParseMediaType(mimeType)
		if err != nil {
			return "", fmt.Errorf("parse content type %q: %w", mimeType, err)
		}
		mediaType = parsed
	}

	if strings.HasPrefix(mediaType, "text/") {
		return mediaType, nil
	}
	if mediaType == "application/octet-stream" {
		if _, ok := textExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
			return "text/plain", nil
		}
	}
	return "", fmt.Errorf("unsupported content type %q: only plain text documents are indexed", mediaType)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
