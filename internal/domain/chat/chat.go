// Package chat holds the conversational retrieval value objects shared
// between the engine, the LLM transport, and the HTTP layer.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/docuquery/docuquery/internal/domain"
)

// Turn is one completed human/AI exchange.
type Turn struct {
	Human string `json:"human"`
	AI    string `json:"ai"`
}

// Usage is the token and cost accounting for one completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
}

// Result is the derived, read-only outcome of one chat turn.
// Never persisted by the engine itself.
type Result struct {
	Question  string
	Answer    string
	Sources   []string // deduplicated source identifiers, sorted
	Documents []domain.SearchHit
	History   []Turn
	Usage     Usage
	Elapsed   time.Duration
}

// CompletionRequest is a provider-agnostic conversational completion request.
type CompletionRequest struct {
	System   string // system prompt with grounding context already rendered
	History  []Turn
	Question string
}

// CompletionResult is the provider's answer plus raw token usage.
type CompletionResult struct {
	Answer           string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer is the language model contract the engine depends on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Error is a chat failure that preserves the original query.
type Error struct {
	Query string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chat query %q: %v", e.Query, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with the query that triggered it.
func NewError(query string, err error) error {
	return &Error{Query: query, Err: err}
}
