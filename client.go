package docuquery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/docuquery/docuquery/internal/domain"
	domchat "github.com/docuquery/docuquery/internal/domain/chat"
	"github.com/docuquery/docuquery/internal/loader"
	"github.com/docuquery/docuquery/internal/metrics"
	"github.com/docuquery/docuquery/internal/store"
	"github.com/docuquery/docuquery/internal/store/memory"
	"github.com/docuquery/docuquery/internal/store/milvus"
	"github.com/docuquery/docuquery/internal/store/pgvector"
	storeRedis "github.com/docuquery/docuquery/internal/store/redis"
	openaiProv "github.com/docuquery/docuquery/internal/transport/openai"
	chatuc "github.com/docuquery/docuquery/internal/usecase/chat"
	collectionuc "github.com/docuquery/docuquery/internal/usecase/collection"
	embeddinguc "github.com/docuquery/docuquery/internal/usecase/embedding"
	ingestuc "github.com/docuquery/docuquery/internal/usecase/ingest"
	searchuc "github.com/docuquery/docuquery/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the docuquery SDK entry point: the full ingestion, search and
// chat pipeline embedded in-process, without the HTTP layer.
type Client struct {
	store     store.VectorStore
	collSvc   *collectionuc.Service
	ingestSvc *ingestuc.Service
	searchSvc *searchuc.Service
	engine    *chatuc.Engine
}

// New creates a docuquery Client and connects to the configured store.
// With no store option the embedded in-process store is used.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		driver:         "memory",
		dimensions:     1536,
		chunkSize:      2000,
		chunkOverlap:   150,
		embeddingModel: "text-embedding-3-small",
		chatModel:      "gpt-4o-mini",
		uploadDir:      os.TempDir(),
		window:         10,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	vecStore, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, vecStore, defaultReadinessTimeout); err != nil {
		vecStore.Close()
		return nil, fmt.Errorf("docuquery: store not ready: %w", err)
	}

	return wireClient(vecStore, cfg)
}

func createStore(cfg *clientConfig) (store.VectorStore, error) {
	switch cfg.driver {
	case "memory":
		s, err := memory.NewStore(cfg.snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("docuquery: create embedded store: %w", err)
		}
		return s, nil
	case "redis", "valkey":
		s, err := storeRedis.NewStore(storeRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
			HNSWM:    cfg.hnswM,
			HNSWEFC:  cfg.hnswEFC,
		})
		if err != nil {
			return nil, fmt.Errorf("docuquery: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	case "pgvector":
		s, err := pgvector.NewStore(context.Background(), cfg.dsn)
		if err != nil {
			return nil, fmt.Errorf("docuquery: create pgvector store: %w", err)
		}
		return s, nil
	case "milvus":
		s, err := milvus.NewStore(context.Background(), milvus.Config{
			Address: cfg.milvusAddr,
			HNSWM:   cfg.hnswM,
			HNSWEFC: cfg.hnswEFC,
		})
		if err != nil {
			return nil, fmt.Errorf("docuquery: create milvus store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("docuquery: unknown driver %q", cfg.driver)
	}
}

func wireClient(vecStore store.VectorStore, cfg *clientConfig) (*Client, error) {
	embedder := buildEmbedder(cfg)
	completer := buildCompleter(cfg)

	splitter, err := loader.NewSplitter(cfg.chunkSize, cfg.chunkOverlap)
	if err != nil {
		vecStore.Close()
		return nil, fmt.Errorf("docuquery: invalid chunking settings: %w", err)
	}
	docLoader := loader.New(splitter, cfg.extensions, cfg.logger)

	collSvc := collectionuc.New(vecStore, cfg.dimensions)
	ingestSvc := ingestuc.New(docLoader, embedder, vecStore, collSvc,
		cfg.uploadDir, cfg.batchSize, cfg.logger)
	searchSvc := searchuc.New(embedder, vecStore)
	engine := chatuc.NewEngine(embedder, vecStore, completer,
		chatuc.Pricing{
			PromptPer1K:     cfg.pricing.PromptPer1K,
			CompletionPer1K: cfg.pricing.CompletionPer1K,
		},
		cfg.window, cfg.logger).WithTopK(cfg.topK)

	return &Client{
		store:     vecStore,
		collSvc:   collSvc,
		ingestSvc: ingestSvc,
		searchSvc: searchSvc,
		engine:    engine,
	}, nil
}

// buildEmbedder picks the configured provider and wraps it with the in-memory
// query cache. Embed without a provider configured returns an error.
func buildEmbedder(cfg *clientConfig) *embeddinguc.CachedEmbedder {
	var base domain.Embedder
	switch {
	case cfg.embedder != nil:
		base = adaptEmbedder(cfg.embedder)
	case cfg.openaiKey != "":
		base = openaiProv.NewEmbedder(&openaiProv.Config{
			APIKey:     cfg.openaiKey,
			BaseURL:    cfg.openaiBaseURL,
			Model:      cfg.embeddingModel,
			Dimensions: cfg.dimensions,
			Provider:   "openai",
			Logger:     cfg.logger,
		})
	default:
		base = noopEmbedder{}
	}
	return embeddinguc.NewCachedEmbedder(base, metrics.EmbeddingCacheTotal)
}

func buildCompleter(cfg *clientConfig) domchat.Completer {
	switch {
	case cfg.completer != nil:
		return &completerAdapter{inner: cfg.completer}
	case cfg.openaiKey != "":
		return openaiProv.NewCompleter(&openaiProv.CompleterConfig{
			APIKey:   cfg.openaiKey,
			BaseURL:  cfg.openaiBaseURL,
			Model:    cfg.chatModel,
			Provider: "openai",
			Logger:   cfg.logger,
		})
	default:
		return noopCompleter{}
	}
}

// Close releases all resources. Conversation memory is ephemeral and is lost.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Ingest uploads documents into the user's collection: stage, chunk, embed,
// upsert. Files that fail extraction are reported, not fatal.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (IngestReport, error) {
	files := make([]ingestuc.File, len(req.Files))
	for i, f := range req.Files {
		files[i] = ingestuc.File{Name: f.Name, Data: f.Data}
	}
	report, err := c.ingestSvc.Ingest(ctx, ingestuc.Request{
		Collection: req.Collection,
		UserID:     req.UserID,
		Files:      files,
	})
	if err != nil {
		return IngestReport{}, err
	}

	out := IngestReport{
		Collection: report.Collection,
		Sources:    report.Sources,
		Chunks:     report.Chunks,
		Tokens:     report.Tokens,
	}
	for _, f := range report.Failed {
		out.Failed = append(out.Failed, FailedSource{Source: f.Source, Reason: f.Reason()})
	}
	return out, nil
}

// Search returns the chunks most similar to the query from the user's
// collection.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	hits, err := c.searchSvc.Search(ctx, searchuc.Request{
		Collection: req.Collection,
		UserID:     req.UserID,
		Query:      req.Query,
		TopK:       req.TopK,
		Sources:    req.Sources,
		MinScore:   req.MinScore,
	})
	if err != nil {
		return nil, err
	}
	return toSearchHits(hits), nil
}

// Chat answers one question grounded in the user's collection, with per-user
// conversation memory.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	result, err := c.engine.Chat(ctx, chatuc.Request{
		Collection:      req.Collection,
		UserID:          req.UserID,
		Question:        req.Question,
		TopK:            req.TopK,
		ReturnHistory:   req.ReturnHistory,
		ReturnDocuments: req.ReturnDocuments,
	})
	if err != nil {
		return ChatResult{}, err
	}

	return ChatResult{
		Question:  result.Question,
		Answer:    result.Answer,
		Sources:   result.Sources,
		Documents: toSearchHits(result.Documents),
		History:   toTurns(result.History),
		Usage: Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
			Cost:             result.Usage.Cost,
		},
		Elapsed: result.Elapsed,
	}, nil
}

// History returns the user's remembered turns, oldest first. An unknown
// user gets an empty history.
func (c *Client) History(userID string) []Turn {
	return toTurns(c.engine.History(userID))
}

// DeleteHistory forgets the user's conversation. Reports whether there was
// one to forget.
func (c *Client) DeleteHistory(userID string) bool {
	return c.engine.DeleteHistory(userID)
}

// DeleteCollection removes the user's collection. Deleting a collection that
// was never created is not an error.
func (c *Client) DeleteCollection(ctx context.Context, collection, userID string) error {
	return c.collSvc.Delete(ctx, collection, userID)
}

func toSearchHits(hits []domain.SearchHit) []SearchHit {
	out := make([]SearchHit, len(hits))
	for i, h := range hits {
		out[i] = SearchHit{
			ID:      h.Chunk.ID,
			Score:   h.Score,
			Content: h.Chunk.Text,
			Source:  h.Chunk.Source,
			Page:    h.Chunk.Page,
		}
	}
	return out
}

func toTurns(turns []domchat.Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = Turn{Human: t.Human, AI: t.AI}
	}
	return out
}

// adaptEmbedder wraps a public Embedder into the internal contract, keeping
// the native batch endpoint when the provider has one.
func adaptEmbedder(e Embedder) domain.Embedder {
	single := &embedderAdapter{inner: e}
	if be, ok := e.(BatchEmbedder); ok {
		return &batchEmbedderAdapter{embedderAdapter: single, batch: be}
	}
	return single
}

// embedderAdapter wraps a public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

type batchEmbedderAdapter struct {
	*embedderAdapter
	batch BatchEmbedder
}

func (a *batchEmbedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	results, err := a.batch.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	if len(results) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"batch embed returned %d results for %d texts", len(results), len(texts))
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(results))}
	for i, r := range results {
		out.Embeddings[i] = r.Embedding
		out.PromptTokens += r.PromptTokens
		out.TotalTokens += r.TotalTokens
	}
	return out, nil
}

// completerAdapter wraps a public Completer to satisfy the internal contract.
type completerAdapter struct {
	inner Completer
}

func (a *completerAdapter) Complete(ctx context.Context, req domchat.CompletionRequest) (domchat.CompletionResult, error) {
	history := make([]Turn, len(req.History))
	for i, t := range req.History {
		history[i] = Turn{Human: t.Human, AI: t.AI}
	}
	r, err := a.inner.Complete(ctx, CompletionRequest{
		System:   req.System,
		History:  history,
		Question: req.Question,
	})
	if err != nil {
		return domchat.CompletionResult{}, fmt.Errorf("complete: %w", err)
	}
	return domchat.CompletionResult{
		Answer:           r.Answer,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
	}, nil
}

// noopEmbedder returns an error on Embed (used when no provider configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New(
		"docuquery: embedder not configured (use WithEmbedder or WithOpenAI)",
	)
}

// noopCompleter returns an error on Complete (used when no provider configured).
type noopCompleter struct{}

func (noopCompleter) Complete(_ context.Context, _ domchat.CompletionRequest) (domchat.CompletionResult, error) {
	return domchat.CompletionResult{}, errors.New(
		"docuquery: completer not configured (use WithCompleter or WithOpenAI)",
	)
}
