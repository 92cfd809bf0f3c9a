package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docuquery/docuquery/internal/domain"
)

// CachedEmbedder memoizes single-text embeddings in process memory, keyed by
// the SHA-256 of the text. Batch calls pass through uncached: ingestion
// rarely sees the same chunk twice, while query texts repeat.
type CachedEmbedder struct {
	inner      domain.Embedder
	cacheTotal *prometheus.CounterVec

	mu    sync.RWMutex
	cache map[[32]byte][]float32
}

// NewCachedEmbedder creates a caching decorator. cacheTotal is a counter vec
// with label "result" ("hit"/"miss"); nil disables counting.
func NewCachedEmbedder(inner domain.Embedder, cacheTotal *prometheus.CounterVec) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		cacheTotal: cacheTotal,
		cache:      make(map[[32]byte][]float32),
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// A cache hit reports zero tokens: nothing was consumed.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := sha256.Sum256([]byte(text))

	c.mu.RLock()
	vec, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		c.inc("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.inc("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.mu.Lock()
	c.cache[key] = result.Embedding
	c.mu.Unlock()
	return result, nil
}

// BatchEmbed delegates to the inner embedder without touching the cache.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := c.inner.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(ctx, c.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch fallback: %w", err)
	}
	return res, nil
}

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *CachedEmbedder) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
