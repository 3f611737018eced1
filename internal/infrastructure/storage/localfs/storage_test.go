package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := store.Save(ctx, "doc-1_policy.txt", strings.NewReader("ages 18 to 65")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reader, err := store.Open(ctx, "doc-1_policy.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "ages 18 to 65" {
		t.Fatalf("unexpected content %q", raw)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Save(context.Background(), "a.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.txt" {
		t.Fatalf("unexpected directory entries: %v", entries)
	}
}

func TestKeysCannotEscapeBasePath(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, key := range []string{"../secret", "", "/etc/passwd", filepath.Join("..", "..", "x")} {
		err := store.Save(context.Background(), key, strings.NewReader("x"))
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Save(%q) expected ErrInvalidInput, got %v", key, err)
		}
	}
}

func TestOpenMissingFileIsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = store.Open(context.Background(), "missing.txt")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
