// Package memory is the embedded in-process vector store: a brute-force
// cosine scan over collections held in RAM, with an optional gob snapshot
// for persistence between restarts.
package memory

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/store"
)

// Compile-time check: Store implements store.VectorStore.
var _ store.VectorStore = (*Store)(nil)

type collection struct {
	Dim     int
	Chunks  []domain.Chunk
	Vectors [][]float32
	byID    map[string]int // chunk ID -> slice position, rebuilt on load
}

// Store is an embedded vector store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	snapshot    string // optional gob file path, "" disables persistence
}

// NewStore creates an empty in-process store.
// snapshotPath, if non-empty, is loaded immediately when present and written
// back by Save.
func NewStore(snapshotPath string) (*Store, error) {
	s := &Store{
		collections: make(map[string]*collection),
		snapshot:    snapshotPath,
	}
	if snapshotPath != "" {
		if err := s.load(snapshotPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}
	return s, nil
}

// CreateCollection registers a collection. Creating an existing one is a no-op.
func (s *Store) CreateCollection(_ context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; ok {
		return nil
	}
	s.collections[name] = &collection{Dim: dim, byID: make(map[string]int)}
	return nil
}

// Upsert stores chunk+vector pairs. An existing chunk ID is replaced in
// place, keeping its original insertion position.
func (s *Store) Upsert(_ context.Context, name string, chunks []domain.Chunk, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("collection %s: %w", name, domain.ErrCollectionNotFound)
	}
	if err := store.ValidateUpsert(chunks, vectors, col.Dim); err != nil {
		return err
	}

	for i, c := range chunks {
		if pos, exists := col.byID[c.ID]; exists {
			col.Chunks[pos] = c
			col.Vectors[pos] = vectors[i]
			continue
		}
		col.byID[c.ID] = len(col.Chunks)
		col.Chunks = append(col.Chunks, c)
		col.Vectors = append(col.Vectors, vectors[i])
	}
	return nil
}

// Search scans the collection and returns the topK nearest chunks by cosine
// similarity, ties broken by insertion order.
func (s *Store) Search(
	_ context.Context, name string, vector []float32, topK int, f store.Filter,
) ([]domain.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrCollectionNotFound)
	}
	if len(vector) != col.Dim {
		return nil, fmt.Errorf("query vector dimension %d, want %d: %w",
			len(vector), col.Dim, domain.ErrVectorDimMismatch)
	}
	if topK <= 0 {
		return nil, nil
	}

	type scored struct {
		pos   int
		score float64
	}
	candidates := make([]scored, 0, len(col.Chunks))
	for i := range col.Chunks {
		if !f.Match(col.Chunks[i]) {
			continue
		}
		candidates = append(candidates, scored{pos: i, score: cosineSimilarity(vector, col.Vectors[i])})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK < len(candidates) {
		candidates = candidates[:topK]
	}

	hits := make([]domain.SearchHit, len(candidates))
	for i, c := range candidates {
		hits[i] = domain.SearchHit{Chunk: col.Chunks[c.pos], Score: c.score}
	}
	return hits, nil
}

// DeleteCollection removes the collection and everything in it.
// A missing name means nothing to delete.
func (s *Store) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, name)
	return nil
}

// Ping always succeeds for the in-process store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close persists the snapshot if configured.
func (s *Store) Close() {
	if s.snapshot != "" {
		_ = s.Save()
	}
}

// Save writes a gob snapshot of all collections to the configured path.
func (s *Store) Save() error {
	if s.snapshot == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Create(s.snapshot)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(s.collections); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

func (s *Store) load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&s.collections); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	for _, col := range s.collections {
		col.byID = make(map[string]int, len(col.Chunks))
		for i, c := range col.Chunks {
			col.byID[c.ID] = i
		}
	}
	return nil
}

// cosineSimilarity returns the cosine of the angle between a and b,
// clamped to [0,1] for ranking consistency with the other backends.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0, sim)
}
