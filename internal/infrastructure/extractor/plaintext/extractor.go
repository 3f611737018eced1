package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const defaultMaxBytes = 32 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extractor reads UTF-8 text documents from object storage.
type Extractor struct {
	storage  ports.ObjectStorage
	maxBytes int64
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage, maxBytes: defaultMaxBytes}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("%s exceeds %d bytes", doc.Filename, e.maxBytes))
	}

	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("not utf-8 text: %s", doc.Filename))
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}
