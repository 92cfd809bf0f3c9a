package docuquery

import (
	"context"
	"io"
	"time"
)

// EmbeddingResult carries an embedding vector and its token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder is the public text vectorization contract.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder is an optional extension for providers with a native batch
// endpoint. Providers without it fall back to one call per text.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) ([]EmbeddingResult, error)
}

// Turn is one completed human/AI exchange.
type Turn struct {
	Human string
	AI    string
}

// CompletionRequest is a conversational completion request.
type CompletionRequest struct {
	System   string
	History  []Turn
	Question string
}

// CompletionResult is the model's answer plus raw token usage.
type CompletionResult struct {
	Answer           string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer is the public chat completion contract.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Pricing converts token usage into cost, per 1000 tokens.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// UploadFile is one document submitted for ingestion.
type UploadFile struct {
	Name string
	Data io.Reader
}

// IngestRequest is an ingestion job for one user.
type IngestRequest struct {
	Collection string
	UserID     string
	Files      []UploadFile
}

// FailedSource records a file that could not be processed.
type FailedSource struct {
	Source string
	Reason string
}

// IngestReport summarizes what an ingestion run did.
type IngestReport struct {
	Collection string
	Sources    []string
	Chunks     int
	Tokens     int
	Failed     []FailedSource
}

// SearchRequest is a similarity search over one user's collection.
type SearchRequest struct {
	Collection string
	UserID     string
	Query      string
	TopK       int
	Sources    []string
	MinScore   float64
}

// SearchHit is a single similarity search result. Score is in [0,1],
// higher is closer.
type SearchHit struct {
	ID      string
	Score   float64
	Content string
	Source  string
	Page    int
}

// ChatRequest is one conversational turn for one user.
type ChatRequest struct {
	Collection      string
	UserID          string
	Question        string
	TopK            int
	ReturnHistory   bool
	ReturnDocuments bool
}

// Usage is the token and cost accounting for one chat turn.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
}

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	Question  string
	Answer    string
	Sources   []string
	Documents []SearchHit
	History   []Turn
	Usage     Usage
	Elapsed   time.Duration
}
