package chat

import (
	"context"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/store"
)

// Embedder vectorizes the user question for retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Store runs the similarity search backing each answer.
type Store interface {
	Search(ctx context.Context, collection string, vector []float32, topK int, f store.Filter) ([]domain.SearchHit, error)
}
