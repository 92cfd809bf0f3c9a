package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrCollectionNotFound signals a missing vector collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrHistoryNotFound signals a missing conversation history.
	ErrHistoryNotFound = errors.New("history not found")
	// ErrValidation signals invalid caller input.
	ErrValidation = errors.New("validation failed")
	// ErrUnsupportedExtension signals a file extension outside the allow-list.
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMProviderError signals a completion provider failure.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrNotImplemented signals an unimplemented backend operation.
	ErrNotImplemented = errors.New("not implemented")
)

// ExtensionError wraps ErrUnsupportedExtension with the offending extension.
type ExtensionError struct {
	Extension string
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnsupportedExtension.Error(), e.Extension)
}

func (e *ExtensionError) Unwrap() error { return ErrUnsupportedExtension }

// NewExtensionError creates an unsupported-extension error.
func NewExtensionError(ext string) error {
	return &ExtensionError{Extension: ext}
}
