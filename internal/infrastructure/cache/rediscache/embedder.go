package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const keyPrefix = "grag:emb:"

// KV is the subset of Store the embedding cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder serves repeated texts from the cache and embeds only the misses.
// Cache failures are logged and never fail the call.
type CachedEmbedder struct {
	next  ports.Embedder
	kv    KV
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(next ports.Embedder, kv KV, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{
		next:  next,
		kv:    kv,
		model: model,
		ttl:   ttl,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = c.key(text)
		vector, ok := c.lookup(ctx, keys[i])
		if ok {
			out[i] = vector
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embed cache misses: vectors/texts mismatch: %d/%d", len(vectors), len(missTexts))
	}
	for j, idx := range missIdx {
		out[idx] = vectors[j]
		if err := c.kv.SetWithTTL(ctx, keys[idx], encodeVector(vectors[j]), c.ttl); err != nil {
			slog.Warn("embedding_cache_write_failed", "error", err)
		}
	}
	return out, nil
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			slog.Warn("embedding_cache_read_failed", "error", err)
		}
		return nil, false
	}
	vector, err := decodeVector(raw)
	if err != nil {
		slog.Warn("embedding_cache_corrupt_entry", "key", key, "error", err)
		return nil, false
	}
	return vector, true
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("invalid vector payload length %d", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
