package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/loader"
	logpkg "github.com/docuquery/docuquery/internal/logger"
	"github.com/docuquery/docuquery/internal/metrics"
	"github.com/docuquery/docuquery/internal/store"
	"github.com/docuquery/docuquery/internal/store/memory"
	"github.com/docuquery/docuquery/internal/store/milvus"
	"github.com/docuquery/docuquery/internal/store/pgvector"
	storeRedis "github.com/docuquery/docuquery/internal/store/redis"
	chiTransport "github.com/docuquery/docuquery/internal/transport/chi"
	openaiProv "github.com/docuquery/docuquery/internal/transport/openai"
	chatuc "github.com/docuquery/docuquery/internal/usecase/chat"
	collectionuc "github.com/docuquery/docuquery/internal/usecase/collection"
	embeddinguc "github.com/docuquery/docuquery/internal/usecase/embedding"
	healthuc "github.com/docuquery/docuquery/internal/usecase/health"
	ingestuc "github.com/docuquery/docuquery/internal/usecase/ingest"
	searchuc "github.com/docuquery/docuquery/internal/usecase/search"
	"github.com/docuquery/docuquery/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docuquery API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
	)

	ctx := context.Background()

	vecStore, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer vecStore.Close()

	if err := store.WaitForReady(ctx, vecStore,
		time.Duration(cfg.Store.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Vector store not ready", zap.Error(err))
	}
	logger.Info("Connected to vector store")

	// Register provider metrics explicitly (no init())
	metrics.RegisterProviderMetrics()

	// Embedder chain — composition root: OpenAI -> Cached -> Instrumented
	base := openaiProv.NewEmbedder(&openaiProv.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	cached := embeddinguc.NewCachedEmbedder(base, metrics.EmbeddingCacheTotal)
	var embedder domain.Embedder = embeddinguc.NewInstrumentedEmbedder(
		cached, cfg.Embedding.Provider, cfg.Embedding.Model, logger,
	)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	completer := openaiProv.NewCompleter(&openaiProv.CompleterConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Provider:    cfg.LLM.Provider,
		Logger:      logger,
	})

	splitter, err := loader.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		logger.Fatal("Invalid chunking settings", zap.Error(err))
	}
	docLoader := loader.New(splitter, cfg.Ingest.Extensions, logger)

	// Use case services
	collSvc := collectionuc.New(vecStore, cfg.Embedding.Dimensions)
	ingestSvc := ingestuc.New(docLoader, mustBatch(embedder), vecStore, collSvc,
		cfg.Ingest.UploadDir, cfg.Ingest.BatchSize, logger)
	searchSvc := searchuc.New(embedder, vecStore)
	chatEngine := chatuc.NewEngine(embedder, vecStore, completer,
		chatuc.Pricing{
			PromptPer1K:     cfg.LLM.Pricing.PromptPer1K,
			CompletionPer1K: cfg.LLM.Pricing.CompletionPer1K,
		},
		cfg.Chat.Window, logger).WithTopK(cfg.Chat.TopK)
	healthSvc := healthuc.New(vecStore, newEmbeddingHealthChecker(base))

	server := chiTransport.NewServer(ingestSvc, searchSvc, chatEngine, collSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildStore creates the vector store selected by store.driver.
func buildStore(ctx context.Context, cfg config.Config) (store.VectorStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.NewStore(cfg.Store.Memory.SnapshotPath)
	case "redis", "valkey":
		return storeRedis.NewStore(storeRedis.Config{
			Addrs:     cfg.Store.Redis.Addrs,
			Username:  cfg.Store.Redis.Username,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
			HNSWM:     cfg.Store.Redis.HNSWM,
			HNSWEFC:   cfg.Store.Redis.HNSWEFC,
		})
	case "pgvector":
		return pgvector.NewStore(ctx, cfg.Store.Pgvector.DSN)
	case "milvus":
		return milvus.NewStore(ctx, milvus.Config{
			Address:  cfg.Store.Milvus.Address,
			Username: cfg.Store.Milvus.Username,
			Password: cfg.Store.Milvus.Password,
			Database: cfg.Store.Milvus.Database,
			HNSWM:    cfg.Store.Milvus.HNSWM,
			HNSWEFC:  cfg.Store.Milvus.HNSWEFC,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// mustBatch narrows an Embedder to its batch interface; every embedder in the
// chain implements it.
func mustBatch(e domain.Embedder) domain.BatchEmbedder {
	be, ok := e.(domain.BatchEmbedder)
	if !ok {
		panic("embedder does not support batching")
	}
	return be
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
