package ingest

import (
	"context"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/loader"
)

// Loader converts an uploaded batch directory into chunks.
type Loader interface {
	LoadDirectory(ctx context.Context, dir string) ([]domain.Chunk, []loader.SourceError)
	Supported(ext string) bool
}

// Embedder vectorizes chunk texts.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Store persists chunk+vector pairs.
type Store interface {
	Upsert(ctx context.Context, collection string, chunks []domain.Chunk, vectors [][]float32) error
}

// Collections resolves and creates the per-user physical collection.
type Collections interface {
	Ensure(ctx context.Context, logical, userID string) (string, error)
}
