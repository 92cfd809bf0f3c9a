package search

import (
	"context"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/store"
)

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Store runs the similarity search.
type Store interface {
	Search(ctx context.Context, collection string, vector []float32, topK int, f store.Filter) ([]domain.SearchHit, error)
}
