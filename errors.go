package docuquery

import "github.com/docuquery/docuquery/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrCollectionNotFound     = domain.ErrCollectionNotFound
	ErrHistoryNotFound        = domain.ErrHistoryNotFound
	ErrValidation             = domain.ErrValidation
	ErrUnsupportedExtension   = domain.ErrUnsupportedExtension
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrLLMProviderError       = domain.ErrLLMProviderError
)
