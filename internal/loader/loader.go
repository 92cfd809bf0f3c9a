// Package loader reads raw sources (files or URLs), normalizes them to plain
// text, and splits the text into overlapping chunks for embedding.
package loader

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/docuquery/docuquery/internal/domain"
)

// AllowedExtensions is the default ingestion allow-list.
var AllowedExtensions = []string{".pdf", ".docx", ".txt", ".csv", ".html", ".htm"}

// binaryExtensions are formats whose extraction leaves a plain-text artifact
// next to the source for traceability.
var binaryExtensions = map[string]bool{".pdf": true, ".csv": true, ".docx": true}

// SourceError records a source that failed during best-effort batch loading.
type SourceError struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
}

// Reason returns the failure message for API responses.
func (e SourceError) Reason() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Loader converts sources into chunks.
type Loader struct {
	splitter *Splitter
	allowed  map[string]bool
	client   *http.Client
	logger   *zap.Logger
}

// New creates a loader. extensions empty means the default allow-list.
func New(splitter *Splitter, extensions []string, logger *zap.Logger) *Loader {
	if len(extensions) == 0 {
		extensions = AllowedExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		splitter: splitter,
		allowed:  allowed,
		client:   &http.Client{},
		logger:   logger,
	}
}

// Supported reports whether the extension is on the allow-list.
func (l *Loader) Supported(ext string) bool {
	return l.allowed[strings.ToLower(ext)]
}

// Load reads a single source (file path or URL) and returns its chunks.
// An unsupported extension yields an empty result, not an error, so
// best-effort directory ingestion can skip over mixed content.
func (l *Loader) Load(ctx context.Context, source string) ([]domain.Chunk, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		pages, err := fetchURL(ctx, l.client, source)
		if err != nil {
			return nil, err
		}
		return l.chunkPages(source, pages), nil
	}

	ext := strings.ToLower(filepath.Ext(source))
	if !l.allowed[ext] {
		l.logger.Debug("Skipping unsupported extension",
			zap.String("source", source), zap.String("ext", ext))
		return nil, nil
	}

	var pages []page
	var err error
	switch ext {
	case ".pdf":
		pages, err = extractPDF(source)
	case ".docx":
		pages, err = extractDOCX(source)
	case ".csv":
		pages, err = extractCSV(source)
	case ".html", ".htm":
		pages, err = extractHTML(source)
	default:
		pages, err = extractTxt(source)
	}
	if err != nil {
		return nil, err
	}

	if binaryExtensions[ext] {
		l.writeArtifact(source, pages)
	}

	// Chunks carry the original filename, not the artifact path.
	return l.chunkPages(filepath.Base(source), pages), nil
}

// LoadDirectory loads every regular file in dir. A single unreadable or
// corrupt source does not abort the batch; it is recorded and skipped.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) ([]domain.Chunk, []SourceError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []SourceError{{Source: dir, Err: err}}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var chunks []domain.Chunk
	var failed []SourceError

	for _, name := range names {
		path := filepath.Join(dir, name)
		cs, err := l.Load(ctx, path)
		if err != nil {
			l.logger.Warn("Failed to load source",
				zap.String("source", name), zap.Error(err))
			failed = append(failed, SourceError{Source: name, Err: err})
			continue
		}
		chunks = append(chunks, cs...)
	}

	return chunks, failed
}

// chunkPages splits each page and assigns a continuous chunk index across
// the whole source, so (source, index) stays unique.
func (l *Loader) chunkPages(source string, pages []page) []domain.Chunk {
	var chunks []domain.Chunk
	index := 0
	for _, p := range pages {
		for _, text := range l.splitter.Split(p.Text) {
			chunks = append(chunks, domain.NewChunk(source, index, text, p.Number))
			index++
		}
	}
	return chunks
}

// writeArtifact stores the extracted plain text next to the source.
// Best effort: failure to write is logged, never fatal.
func (l *Loader) writeArtifact(source string, pages []page) {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	artifact := source + ".txt"
	if err := os.WriteFile(artifact, []byte(strings.Join(texts, "\n\n")), 0o600); err != nil {
		l.logger.Warn("Failed to write text artifact",
			zap.String("artifact", artifact), zap.Error(err))
	}
}
