package chunking

import (
	"strings"
	"unicode"
)

// Splitter cuts text into overlapping rune windows, preferring paragraph, line and word breaks.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// breakPoint looks back over the last quarter of the window for the strongest separator.
func breakPoint(runes []rune, start, end int) int {
	floor := end - (end-start)/4
	if floor <= start {
		return end
	}
	for _, match := range []func(i int) bool{
		func(i int) bool { return runes[i] == '\n' && i > 0 && runes[i-1] == '\n' },
		func(i int) bool { return runes[i] == '\n' },
		func(i int) bool { return unicode.IsSpace(runes[i]) },
	} {
		for i := end - 1; i >= floor; i-- {
			if match(i) {
				return i + 1
			}
		}
	}
	return end
}
