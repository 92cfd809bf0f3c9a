// Package search embeds a query and retrieves the most similar chunks from a
// user's collection.
package search

import (
	"context"
	"fmt"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/store"
	"github.com/docuquery/docuquery/internal/usecase/collection"
)

// DefaultTopK bounds retrieval when the request leaves it unset.
const DefaultTopK = 4

// Request is a similarity search over a collection, optionally scoped to
// one user.
type Request struct {
	Collection string
	UserID     string
	Query      string
	TopK       int
	Sources    []string
	MinScore   float64
}

// Service handles similarity search.
type Service struct {
	embed Embedder
	store Store
}

// New creates a search service.
func New(embed Embedder, store Store) *Service {
	return &Service{embed: embed, store: store}
}

// Search embeds the query and returns the topK nearest chunks, optionally
// restricted to specific sources and a minimum similarity score.
func (s *Service) Search(ctx context.Context, req Request) ([]domain.SearchHit, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	physical := collection.Resolve(req.Collection, req.UserID)

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	emb, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, physical, emb.Embedding, topK,
		store.Filter{Sources: req.Sources})
	if err != nil {
		return nil, fmt.Errorf("search collection: %w", err)
	}

	if req.MinScore > 0 {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Score >= req.MinScore {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}
	return hits, nil
}
