package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/docuquery/docuquery/internal/domain"
)

// singleOnly implements Embedder but not BatchEmbedder, to exercise the fallback.
type singleOnly struct {
	calls int
	err   error
}

func (m *singleOnly) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1}, TotalTokens: 2}, nil
}

func TestInstrumentedEmbed_Success(t *testing.T) {
	inner := &countingEmbedder{vector: []float32{1, 2, 3}}
	emb := NewInstrumentedEmbedder(inner, "openai", "text-embedding-3-small", nil)

	res, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 3 {
		t.Errorf("result not passed through: %v", res.Embedding)
	}
}

func TestInstrumentedEmbed_Error(t *testing.T) {
	innerErr := errors.New("rate limited")
	emb := NewInstrumentedEmbedder(&countingEmbedder{err: innerErr}, "openai", "m", nil)

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, innerErr) {
		t.Errorf("expected inner error wrapped, got %v", err)
	}
}

func TestInstrumentedBatchEmbed_Empty(t *testing.T) {
	inner := &countingEmbedder{}
	emb := NewInstrumentedEmbedder(inner, "openai", "m", nil)

	res, err := emb.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 0 || inner.batch != 0 {
		t.Error("empty batch should short-circuit")
	}
}

func TestInstrumentedBatchEmbed_DelegatesToBatchProvider(t *testing.T) {
	inner := &countingEmbedder{vector: []float32{1}}
	emb := NewInstrumentedEmbedder(inner, "openai", "m", nil)

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batch != 1 {
		t.Errorf("expected one provider batch call, got %d", inner.batch)
	}
	if len(res.Embeddings) != 3 || res.TotalTokens != 3 {
		t.Errorf("unexpected result: %d embeddings, %d tokens", len(res.Embeddings), res.TotalTokens)
	}
}

func TestInstrumentedBatchEmbed_FallbackForSingleProvider(t *testing.T) {
	inner := &singleOnly{}
	emb := NewInstrumentedEmbedder(inner, "openai", "m", nil)

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("fallback should call Embed per text, got %d calls", inner.calls)
	}
	if res.TotalTokens != 4 {
		t.Errorf("fallback should sum tokens, got %d", res.TotalTokens)
	}
}
