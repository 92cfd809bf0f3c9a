// Package store defines the uniform vector storage contract implemented by
// every backend adapter (embedded in-process, Redis/Valkey, pgvector, Milvus).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/docuquery/docuquery/internal/domain"
)

// Filter optionally restricts a similarity search to specific sources.
// The zero value matches everything.
type Filter struct {
	Sources []string
}

// Match reports whether a chunk passes the filter.
func (f Filter) Match(c domain.Chunk) bool {
	if len(f.Sources) == 0 {
		return true
	}
	for _, s := range f.Sources {
		if c.Source == s {
			return true
		}
	}
	return false
}

// VectorStore is the uniform CRUD-over-vectors contract.
//
// Semantics every adapter must honor:
//   - CreateCollection is idempotent: creating an existing collection is a no-op.
//   - Upsert inserts chunk+vector pairs; whether a batch is all-or-nothing is
//     backend-dependent (pgvector: transactional; Redis, Milvus, embedded:
//     per-item, a mid-batch failure may leave earlier items stored).
//   - Search returns at most topK hits ordered by descending similarity,
//     ties broken by insertion order. A missing collection is a hard
//     domain.ErrCollectionNotFound.
//   - DeleteCollection resolves the logical name to the backend's physical
//     identifier first, then removes vectors and collection metadata. A
//     missing name means "nothing to delete" and returns nil.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, collection string, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, collection string, vector []float32, topK int, f Filter) ([]domain.SearchHit, error)
	DeleteCollection(ctx context.Context, name string) error
	Ping(ctx context.Context) error
	Close()
}

// ValidateUpsert checks the chunk/vector pairing shared by all adapters.
func ValidateUpsert(chunks []domain.Chunk, vectors [][]float32, dim int) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d: %w",
				i, len(v), dim, domain.ErrVectorDimMismatch)
		}
	}
	return nil
}

// WaitForReady polls Ping until the store responds or the timeout expires.
func WaitForReady(ctx context.Context, s VectorStore, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for vector store: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}
