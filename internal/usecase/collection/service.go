// Package collection maps logical collection names to optionally
// user-scoped physical collections and manages their lifecycle in the
// vector store.
package collection

import (
	"context"
	"fmt"
)

// DefaultName is used when a request leaves the collection name unset.
const DefaultName = "vectorstore"

// placeholder is the literal clients send when they submit an API form
// without filling a field in. Treated the same as unset, for both the
// collection name and the user scope.
const placeholder = "string"

// Resolve turns a logical collection name and an optional user scope into
// the physical collection name. An unset or placeholder logical name falls
// back to DefaultName; an unset or placeholder user scope leaves the name
// unsuffixed, addressing the shared collection.
func Resolve(logical, userID string) string {
	if logical == "" || logical == placeholder {
		logical = DefaultName
	}
	if userID == "" || userID == placeholder {
		return logical
	}
	return logical + "_" + userID
}

// Service manages per-user collections.
type Service struct {
	store Store
	dim   int
}

// New creates a collection service. dim is the embedding dimension every
// collection is created with.
func New(store Store, dim int) *Service {
	return &Service{store: store, dim: dim}
}

// Ensure resolves the physical name and creates the collection if it does
// not exist yet. Returns the physical name.
func (s *Service) Ensure(ctx context.Context, logical, userID string) (string, error) {
	physical := Resolve(logical, userID)
	if err := s.store.CreateCollection(ctx, physical, s.dim); err != nil {
		return "", fmt.Errorf("create collection: %w", err)
	}
	return physical, nil
}

// Delete removes the user's collection. Deleting a collection that was never
// created is not an error.
func (s *Service) Delete(ctx context.Context, logical, userID string) error {
	physical := Resolve(logical, userID)
	if err := s.store.DeleteCollection(ctx, physical); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}
