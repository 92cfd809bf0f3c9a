// Package chat implements conversational retrieval: retrieve grounding
// chunks, complete against the LLM with per-user window memory, and account
// for token usage and cost.
package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docuquery/docuquery/internal/domain"
	domchat "github.com/docuquery/docuquery/internal/domain/chat"
	"github.com/docuquery/docuquery/internal/store"
	"github.com/docuquery/docuquery/internal/usecase/collection"
)

// DefaultTopK bounds retrieval when the request leaves it unset.
const DefaultTopK = 3

// Pricing converts token usage into cost, per 1000 tokens.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Cost computes the call cost from raw token counts.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.PromptPer1K +
		float64(completionTokens)/1000*p.CompletionPer1K
}

// Request is one conversational turn for one user.
type Request struct {
	Collection      string
	UserID          string
	Question        string
	TopK            int
	ReturnHistory   bool
	ReturnDocuments bool
}

// Engine drives conversational retrieval. Memory is in-process and ephemeral:
// a restart clears every conversation, by the same contract as the window
// memory it replaces.
type Engine struct {
	embed   Embedder
	store   Store
	llm     domchat.Completer
	pricing Pricing
	window  int
	topK    int
	logger  *zap.Logger

	mu     sync.Mutex
	memory map[string]*domchat.Window
	locks  map[string]*sync.Mutex
}

// NewEngine creates a chat engine. window <= 0 means the default window size.
func NewEngine(
	embed Embedder, st Store, llm domchat.Completer,
	pricing Pricing, window int, logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		embed:   embed,
		store:   st,
		llm:     llm,
		pricing: pricing,
		window:  window,
		topK:    DefaultTopK,
		logger:  logger,
		memory:  make(map[string]*domchat.Window),
		locks:   make(map[string]*sync.Mutex),
	}
}

// WithTopK overrides the retrieval depth used when a request leaves TopK
// unset. k <= 0 keeps the current value.
func (e *Engine) WithTopK(k int) *Engine {
	if k > 0 {
		e.topK = k
	}
	return e
}

// Chat answers one question grounded in the user's collection. Turns of the
// same user are serialized so memory stays a coherent conversation; different
// users proceed concurrently.
func (e *Engine) Chat(ctx context.Context, req Request) (domchat.Result, error) {
	if req.Question == "" {
		return domchat.Result{}, fmt.Errorf("question is required: %w", domain.ErrValidation)
	}
	physical := collection.Resolve(req.Collection, req.UserID)

	userLock := e.userLock(req.UserID)
	userLock.Lock()
	defer userLock.Unlock()

	start := time.Now()

	topK := req.TopK
	if topK <= 0 {
		topK = e.topK
	}

	emb, err := e.embed.Embed(ctx, req.Question)
	if err != nil {
		return domchat.Result{}, domchat.NewError(req.Question, fmt.Errorf("embed question: %w", err))
	}

	hits, err := e.store.Search(ctx, physical, emb.Embedding, topK, store.Filter{})
	if err != nil {
		return domchat.Result{}, domchat.NewError(req.Question, fmt.Errorf("retrieve context: %w", err))
	}

	window := e.userWindow(req.UserID)
	history := window.Turns()

	completion, err := e.llm.Complete(ctx, domchat.CompletionRequest{
		System:   renderSystem(hits),
		History:  history,
		Question: req.Question,
	})
	if err != nil {
		return domchat.Result{}, domchat.NewError(req.Question, err)
	}

	window.Append(req.Question, completion.Answer)

	promptTokens := completion.PromptTokens + emb.PromptTokens
	totalTokens := completion.TotalTokens + emb.TotalTokens

	result := domchat.Result{
		Question: req.Question,
		Answer:   completion.Answer,
		Sources:  sourcesOf(hits),
		Usage: domchat.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completion.CompletionTokens,
			TotalTokens:      totalTokens,
			Cost:             e.pricing.Cost(promptTokens, completion.CompletionTokens),
		},
		Elapsed: time.Since(start),
	}
	if req.ReturnDocuments {
		result.Documents = hits
	}
	if req.ReturnHistory {
		result.History = window.Turns()
	}

	e.logger.Info("Chat turn complete",
		zap.String("user_id", req.UserID),
		zap.String("collection", physical),
		zap.Int("hits", len(hits)),
		zap.Int("total_tokens", totalTokens),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

// History returns the user's remembered turns, oldest first. An unknown user
// gets an empty history, not an error.
func (e *Engine) History(userID string) []domchat.Turn {
	e.mu.Lock()
	window, ok := e.memory[userID]
	e.mu.Unlock()
	if !ok {
		return []domchat.Turn{}
	}
	return window.Turns()
}

// DeleteHistory forgets the user's conversation. Reports whether there was
// one to forget.
func (e *Engine) DeleteHistory(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.memory[userID]; !ok {
		return false
	}
	delete(e.memory, userID)
	return true
}

func (e *Engine) userWindow(userID string) *domchat.Window {
	e.mu.Lock()
	defer e.mu.Unlock()

	window, ok := e.memory[userID]
	if !ok {
		window = domchat.NewWindow(e.window)
		e.memory[userID] = window
	}
	return window
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userID] = lock
	}
	return lock
}

func sourcesOf(hits []domain.SearchHit) []string {
	seen := make(map[string]bool, len(hits))
	sources := make([]string, 0, len(hits))
	for _, h := range hits {
		if !seen[h.Chunk.Source] {
			seen[h.Chunk.Source] = true
			sources = append(sources, h.Chunk.Source)
		}
	}
	sort.Strings(sources)
	return sources
}
