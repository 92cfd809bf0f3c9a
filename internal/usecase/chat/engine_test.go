package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docuquery/docuquery/internal/domain"
	domchat "github.com/docuquery/docuquery/internal/domain/chat"
	"github.com/docuquery/docuquery/internal/store"
)

// --- Mocks ---

type mockEmbedder struct {
	embedding []float32
	tokens    int
	err       error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{
		Embedding:    m.embedding,
		PromptTokens: m.tokens,
		TotalTokens:  m.tokens,
	}, nil
}

type mockStore struct {
	collection string
	topK       int
	hits       []domain.SearchHit
	err        error
}

func (m *mockStore) Search(
	_ context.Context, collection string, _ []float32, topK int, _ store.Filter,
) ([]domain.SearchHit, error) {
	m.collection = collection
	m.topK = topK
	return m.hits, m.err
}

type mockCompleter struct {
	requests []domchat.CompletionRequest
	answer   string
	prompt   int
	compl    int
	err      error
}

func (m *mockCompleter) Complete(_ context.Context, req domchat.CompletionRequest) (domchat.CompletionResult, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return domchat.CompletionResult{}, m.err
	}
	return domchat.CompletionResult{
		Answer:           m.answer,
		PromptTokens:     m.prompt,
		CompletionTokens: m.compl,
		TotalTokens:      m.prompt + m.compl,
	}, nil
}

func hit(source, text string, score float64) domain.SearchHit {
	return domain.SearchHit{Chunk: domain.NewChunk(source, 0, text, 0), Score: score}
}

func newEngine(e *mockEmbedder, s *mockStore, c *mockCompleter) *Engine {
	return NewEngine(e, s, c, Pricing{PromptPer1K: 0.01, CompletionPer1K: 0.03}, 0, nil)
}

// --- Tests ---

func TestChat_HappyPath(t *testing.T) {
	emb := &mockEmbedder{embedding: []float32{1, 0}, tokens: 2}
	st := &mockStore{hits: []domain.SearchHit{
		hit("plan.pdf", "eye exams are covered", 0.9),
		hit("handbook.txt", "vacation policy", 0.6),
		hit("plan.pdf", "dental is separate", 0.5),
	}}
	llm := &mockCompleter{answer: "Yes, eye exams are covered [plan.pdf].", prompt: 100, compl: 20}
	engine := newEngine(emb, st, llm)

	result, err := engine.Chat(context.Background(), Request{
		Collection: "docs", UserID: "u1", Question: "Does my plan cover eye exams?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.collection != "docs_u1" {
		t.Errorf("expected physical collection docs_u1, got %q", st.collection)
	}
	if st.topK != DefaultTopK {
		t.Errorf("expected default topK, got %d", st.topK)
	}
	if result.Answer != llm.answer {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	// Sources deduplicated and sorted.
	if len(result.Sources) != 2 || result.Sources[0] != "handbook.txt" || result.Sources[1] != "plan.pdf" {
		t.Errorf("unexpected sources: %v", result.Sources)
	}
	// Embedding tokens are part of the prompt-side accounting.
	if result.Usage.PromptTokens != 102 || result.Usage.CompletionTokens != 20 {
		t.Errorf("unexpected usage: %+v", result.Usage)
	}
	wantCost := 102.0/1000*0.01 + 20.0/1000*0.03
	if result.Usage.Cost != wantCost {
		t.Errorf("expected cost %f, got %f", wantCost, result.Usage.Cost)
	}
	if result.Elapsed <= 0 {
		t.Error("elapsed time not measured")
	}
	// Documents and history are opt-in.
	if result.Documents != nil || result.History != nil {
		t.Errorf("documents/history returned without being requested: %+v", result)
	}
}

func TestChat_SystemPromptCarriesSources(t *testing.T) {
	st := &mockStore{hits: []domain.SearchHit{hit("plan.pdf", "eye exams\nare covered", 0.9)}}
	llm := &mockCompleter{answer: "ok"}
	engine := newEngine(&mockEmbedder{embedding: []float32{1}}, st, llm)

	_, err := engine.Chat(context.Background(), Request{UserID: "u1", Question: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	system := llm.requests[0].System
	if !strings.Contains(system, "plan.pdf: eye exams are covered") {
		t.Errorf("system prompt missing flattened source line:\n%s", system)
	}
}

func TestChat_NoHitsStillAnswers(t *testing.T) {
	llm := &mockCompleter{answer: "I don't know."}
	engine := newEngine(&mockEmbedder{embedding: []float32{1}}, &mockStore{}, llm)

	result, err := engine.Chat(context.Background(), Request{UserID: "u1", Question: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Sources) != 0 {
		t.Errorf("expected no sources, got %v", result.Sources)
	}
	if !strings.Contains(llm.requests[0].System, "(no sources found)") {
		t.Error("system prompt should state that no sources were found")
	}
}

func TestChat_MemoryAccumulatesPerUser(t *testing.T) {
	llm := &mockCompleter{answer: "a"}
	engine := newEngine(&mockEmbedder{embedding: []float32{1}}, &mockStore{}, llm)
	ctx := context.Background()

	_, _ = engine.Chat(ctx, Request{UserID: "u1", Question: "first"})
	_, _ = engine.Chat(ctx, Request{UserID: "u1", Question: "second"})
	_, _ = engine.Chat(ctx, Request{UserID: "u2", Question: "other user"})

	// Second u1 turn must have seen the first turn as history.
	if len(llm.requests[1].History) != 1 || llm.requests[1].History[0].Human != "first" {
		t.Errorf("expected first turn in history, got %+v", llm.requests[1].History)
	}
	// u2 starts fresh.
	if len(llm.requests[2].History) != 0 {
		t.Errorf("users must not share memory, got %+v", llm.requests[2].History)
	}

	if got := engine.History("u1"); len(got) != 2 {
		t.Errorf("expected 2 remembered turns for u1, got %d", len(got))
	}
}

func TestChat_ReturnHistoryAndDocuments(t *testing.T) {
	st := &mockStore{hits: []domain.SearchHit{hit("a.txt", "x", 0.9)}}
	engine := newEngine(&mockEmbedder{embedding: []float32{1}}, st, &mockCompleter{answer: "a"})

	result, err := engine.Chat(context.Background(), Request{
		UserID: "u1", Question: "q", ReturnHistory: true, ReturnDocuments: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Documents) != 1 {
		t.Errorf("expected documents returned, got %+v", result.Documents)
	}
	// History includes the turn just completed.
	if len(result.History) != 1 || result.History[0].Human != "q" {
		t.Errorf("expected current turn in history, got %+v", result.History)
	}
}

func TestChat_ValidationErrors(t *testing.T) {
	engine := newEngine(&mockEmbedder{}, &mockStore{}, &mockCompleter{})

	_, err := engine.Chat(context.Background(), Request{UserID: "u1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty question: expected ErrValidation, got %v", err)
	}
}

func TestChat_ConfiguredTopK(t *testing.T) {
	st := &mockStore{}
	engine := newEngine(&mockEmbedder{embedding: []float32{1}}, st, &mockCompleter{answer: "ok"}).
		WithTopK(7)
	ctx := context.Background()

	if _, err := engine.Chat(ctx, Request{UserID: "u1", Question: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.topK != 7 {
		t.Errorf("expected configured topK 7, got %d", st.topK)
	}

	// An explicit request value still wins.
	if _, err := engine.Chat(ctx, Request{UserID: "u1", Question: "q", TopK: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.topK != 2 {
		t.Errorf("expected request topK 2, got %d", st.topK)
	}
}

func TestChat_UnscopedCollection(t *testing.T) {
	st := &mockStore{}
	engine := newEngine(&mockEmbedder{embedding: []float32{1}}, st, &mockCompleter{answer: "ok"})

	if _, err := engine.Chat(context.Background(), Request{Question: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.collection != "vectorstore" {
		t.Errorf("expected shared collection, got %q", st.collection)
	}
}

func TestChat_LLMErrorPreservesQuery(t *testing.T) {
	llmErr := errors.New("model overloaded")
	engine := newEngine(&mockEmbedder{embedding: []float32{1}}, &mockStore{}, &mockCompleter{err: llmErr})

	_, err := engine.Chat(context.Background(), Request{UserID: "u1", Question: "my question"})
	if !errors.Is(err, llmErr) {
		t.Fatalf("expected llm error wrapped, got %v", err)
	}
	var chatErr *domchat.Error
	if !errors.As(err, &chatErr) || chatErr.Query != "my question" {
		t.Errorf("expected chat.Error carrying the query, got %v", err)
	}

	// A failed turn must not pollute memory.
	if got := engine.History("u1"); len(got) != 0 {
		t.Errorf("failed turn leaked into memory: %+v", got)
	}
}

func TestChat_RetrievalErrorPassesThrough(t *testing.T) {
	st := &mockStore{err: domain.ErrCollectionNotFound}
	engine := newEngine(&mockEmbedder{embedding: []float32{1}}, st, &mockCompleter{})

	_, err := engine.Chat(context.Background(), Request{UserID: "u1", Question: "q"})
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestHistory_UnknownUserIsEmpty(t *testing.T) {
	engine := newEngine(&mockEmbedder{}, &mockStore{}, &mockCompleter{})
	got := engine.History("nobody")
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil history, got %#v", got)
	}
}

func TestDeleteHistory(t *testing.T) {
	engine := newEngine(&mockEmbedder{embedding: []float32{1}}, &mockStore{}, &mockCompleter{answer: "a"})
	_, _ = engine.Chat(context.Background(), Request{UserID: "u1", Question: "q"})

	if !engine.DeleteHistory("u1") {
		t.Error("expected delete to report an existing conversation")
	}
	if engine.DeleteHistory("u1") {
		t.Error("second delete must report nothing to forget")
	}
	if got := engine.History("u1"); len(got) != 0 {
		t.Errorf("history should be gone, got %+v", got)
	}
}

func TestPricing_Cost(t *testing.T) {
	p := Pricing{PromptPer1K: 0.5, CompletionPer1K: 1.5}
	got := p.Cost(2000, 1000)
	if got != 2.5 {
		t.Errorf("expected cost 2.5, got %f", got)
	}
	if (Pricing{}).Cost(1000, 1000) != 0 {
		t.Error("zero pricing must cost nothing")
	}
}
