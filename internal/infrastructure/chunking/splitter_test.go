package chunking

import (
	"strings"
	"testing"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	got := NewSplitter(100, 10).Split("  entry age 18 to 65  ")
	if len(got) != 1 || got[0] != "entry age 18 to 65" {
		t.Fatalf("unexpected chunks: %q", got)
	}
}

func TestSplitEmptyText(t *testing.T) {
	if got := NewSplitter(100, 10).Split(""); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
}

func TestSplitPrefersWordBoundaries(t *testing.T) {
	text := strings.Repeat("word ", 40)
	chunks := NewSplitter(22, 0).Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		for _, field := range strings.Fields(chunk) {
			if field != "word" {
				t.Fatalf("chunk %q splits a word", chunk)
			}
		}
	}
}

func TestSplitPrefersParagraphBreak(t *testing.T) {
	text := "first paragraph text\n\nsecond paragraph"
	chunks := NewSplitter(25, 0).Split(text)
	if len(chunks) != 2 || chunks[0] != "first paragraph text" || chunks[1] != "second paragraph" {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
}

func TestSplitOverlapRepeatsTail(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := NewSplitter(10, 3).Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %q", chunks)
	}
	if !strings.HasPrefix(chunks[1], chunks[0][len(chunks[0])-3:]) {
		t.Fatalf("expected overlap between %q and %q", chunks[0], chunks[1])
	}
	if last := chunks[len(chunks)-1]; !strings.HasSuffix(last, "z") {
		t.Fatalf("text tail lost: %q", chunks)
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(8, 20)
	if s.Overlap != 2 {
		t.Fatalf("expected overlap clamped to 2, got %d", s.Overlap)
	}
}
