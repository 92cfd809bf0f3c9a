// Package ingest implements the upload pipeline: validate extensions, stage
// the batch on disk, extract and chunk, embed, and upsert into the user's
// collection.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/loader"
)

// DefaultBatchSize is how many chunk texts go into one embedding API call.
const DefaultBatchSize = 64

// File is one uploaded document.
type File struct {
	Name string
	Data io.Reader
}

// Request is an ingestion job for one user.
type Request struct {
	Collection string
	UserID     string
	Files      []File
}

// Report summarizes what an ingestion run did.
type Report struct {
	Collection string               `json:"collection"`
	Sources    []string             `json:"sources"`
	Chunks     int                  `json:"chunks"`
	Tokens     int                  `json:"total_tokens"`
	Failed     []loader.SourceError `json:"failed_files,omitempty"`
}

// Service runs ingestion jobs.
type Service struct {
	loader      Loader
	embedder    Embedder
	store       Store
	collections Collections
	uploadRoot  string
	batchSize   int
	logger      *zap.Logger
}

// New creates an ingest service. batchSize <= 0 means DefaultBatchSize.
func New(
	l Loader, e Embedder, s Store, c Collections,
	uploadRoot string, batchSize int, logger *zap.Logger,
) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		loader:      l,
		embedder:    e,
		store:       s,
		collections: c,
		uploadRoot:  uploadRoot,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Ingest validates, stages, chunks, embeds and stores the uploaded files.
// Per-source extraction failures do not abort the batch; they come back in
// Report.Failed. A disallowed extension rejects the whole request upfront.
func (s *Service) Ingest(ctx context.Context, req Request) (Report, error) {
	if len(req.Files) == 0 {
		return Report{}, fmt.Errorf("no files submitted: %w", domain.ErrValidation)
	}
	for _, f := range req.Files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !s.loader.Supported(ext) {
			return Report{}, domain.NewExtensionError(ext)
		}
	}

	dir, err := s.stage(req.Files)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Failed to clean upload batch", zap.String("dir", dir), zap.Error(err))
		}
	}()

	chunks, failed := s.loader.LoadDirectory(ctx, dir)
	if len(chunks) == 0 {
		return Report{Failed: failed}, nil
	}

	physical, err := s.collections.Ensure(ctx, req.Collection, req.UserID)
	if err != nil {
		return Report{}, err
	}

	vectors, tokens, err := s.embedAll(ctx, chunks)
	if err != nil {
		return Report{}, err
	}

	if err := s.store.Upsert(ctx, physical, chunks, vectors); err != nil {
		return Report{}, fmt.Errorf("store chunks: %w", err)
	}

	report := Report{
		Collection: physical,
		Sources:    distinctSources(chunks),
		Chunks:     len(chunks),
		Tokens:     tokens,
		Failed:     failed,
	}
	s.logger.Info("Ingestion complete",
		zap.String("collection", physical),
		zap.Int("chunks", report.Chunks),
		zap.Int("sources", len(report.Sources)),
		zap.Int("failed", len(failed)),
		zap.Int("tokens", tokens))
	return report, nil
}

// stage writes the uploads into a fresh timestamped directory under the
// upload root.
func (s *Service) stage(files []File) (string, error) {
	if err := os.MkdirAll(s.uploadRoot, 0o750); err != nil {
		return "", fmt.Errorf("create upload root: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	dir, err := os.MkdirTemp(s.uploadRoot, stamp+"_")
	if err != nil {
		return "", fmt.Errorf("create batch dir: %w", err)
	}

	for _, f := range files {
		name := filepath.Base(f.Name)
		if name == "." || name == string(filepath.Separator) {
			os.RemoveAll(dir)
			return "", fmt.Errorf("invalid file name %q: %w", f.Name, domain.ErrValidation)
		}
		dst, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("stage %s: %w", name, err)
		}
		if _, err := io.Copy(dst, f.Data); err != nil {
			dst.Close()
			os.RemoveAll(dir)
			return "", fmt.Errorf("stage %s: %w", name, err)
		}
		if err := dst.Close(); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("stage %s: %w", name, err)
		}
	}
	return dir, nil
}

// embedAll vectorizes chunk texts in sub-batches.
func (s *Service) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, int, error) {
	vectors := make([][]float32, 0, len(chunks))
	var tokens int

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))

		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}

		res, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return nil, 0, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(res.Embeddings) != len(texts) {
			return nil, 0, fmt.Errorf("embedder returned %d vectors for %d texts",
				len(res.Embeddings), len(texts))
		}
		vectors = append(vectors, res.Embeddings...)
		tokens += res.TotalTokens
	}
	return vectors, tokens, nil
}

func distinctSources(chunks []domain.Chunk) []string {
	seen := make(map[string]bool, len(chunks))
	var sources []string
	for _, c := range chunks {
		if !seen[c.Source] {
			seen[c.Source] = true
			sources = append(sources, c.Source)
		}
	}
	sort.Strings(sources)
	return sources
}
