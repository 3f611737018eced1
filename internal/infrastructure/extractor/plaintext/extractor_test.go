package plaintext

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

type memoryStorage struct {
	files map[string][]byte
}

func (m *memoryStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.files[key] = raw
	return nil
}

func (m *memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := m.files[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func TestExtractNormalizesText(t *testing.T) {
	store := &memoryStorage{files: map[string][]byte{
		"doc.txt": append([]byte{0xEF, 0xBB, 0xBF}, []byte("  Entry age 18 to 65.\r\nWaiting period applies.\r\n")...),
	}}
	text, err := NewExtractor(store).Extract(context.Background(), &domain.Document{StoragePath: "doc.txt", Filename: "doc.txt"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Entry age 18 to 65.\nWaiting period applies." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractRejectsBinary(t *testing.T) {
	store := &memoryStorage{files: map[string][]byte{"doc.bin": {0xff, 0xfe, 0x00, 0x81}}}
	_, err := NewExtractor(store).Extract(context.Background(), &domain.Document{StoragePath: "doc.bin", Filename: "doc.bin"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExtractRejectsOversizedDocument(t *testing.T) {
	store := &memoryStorage{files: map[string][]byte{"big.txt": bytes.Repeat([]byte("a"), 11)}}
	extractor := NewExtractor(store)
	extractor.maxBytes = 10
	_, err := extractor.Extract(context.Background(), &domain.Document{StoragePath: "big.txt", Filename: "big.txt"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExtractPropagatesStorageError(t *testing.T) {
	store := &memoryStorage{files: map[string][]byte{}}
	_, err := NewExtractor(store).Extract(context.Background(), &domain.Document{StoragePath: "missing"})
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
