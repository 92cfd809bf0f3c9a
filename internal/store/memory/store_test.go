package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/store"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func chunk(source string, index int, text string) domain.Chunk {
	return domain.NewChunk(source, index, text, 0)
}

func TestCreateCollection_Idempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, "docs", 3); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := s.CreateCollection(ctx, "docs", 3); err != nil {
		t.Fatalf("second create should be a no-op: %v", err)
	}

	if err := s.Upsert(ctx, "docs", []domain.Chunk{chunk("a.txt", 0, "x")}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	hits, err := s.Search(ctx, "docs", []float32{1, 0, 0}, 10, store.Filter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected exactly one collection holding one chunk, got %d hits", len(hits))
	}
}

func TestUpsertSearch_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, "docs", 3); err != nil {
		t.Fatalf("create: %v", err)
	}

	chunks := []domain.Chunk{
		chunk("a.txt", 0, "vision coverage"),
		chunk("a.txt", 1, "dental coverage"),
		chunk("b.txt", 0, "parking rules"),
	}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if err := s.Upsert(ctx, "docs", chunks, vectors); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := s.Search(ctx, "docs", []float32{1, 0, 0}, 3, store.Filter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Chunk.ID != "a.txt:0" {
		t.Errorf("expected the stored chunk itself as top hit, got %q", hits[0].Chunk.ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits not ordered by descending similarity")
	}
}

func TestSearch_TopKBound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_ = s.CreateCollection(ctx, "docs", 2)

	chunks := []domain.Chunk{chunk("a", 0, "1"), chunk("a", 1, "2"), chunk("a", 2, "3")}
	vectors := [][]float32{{1, 0}, {0.9, 0.1}, {0, 1}}
	_ = s.Upsert(ctx, "docs", chunks, vectors)

	hits, err := s.Search(ctx, "docs", []float32{1, 0}, 2, store.Filter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected topK=2 hits, got %d", len(hits))
	}
}

func TestSearch_TiesBrokenByInsertionOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_ = s.CreateCollection(ctx, "docs", 2)

	// Identical vectors: scores tie exactly.
	chunks := []domain.Chunk{chunk("first", 0, "x"), chunk("second", 0, "x")}
	vectors := [][]float32{{1, 0}, {1, 0}}
	_ = s.Upsert(ctx, "docs", chunks, vectors)

	hits, _ := s.Search(ctx, "docs", []float32{1, 0}, 2, store.Filter{})
	if hits[0].Chunk.Source != "first" || hits[1].Chunk.Source != "second" {
		t.Errorf("ties must keep insertion order, got %q then %q",
			hits[0].Chunk.Source, hits[1].Chunk.Source)
	}
}

func TestSearch_SourceFilter(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_ = s.CreateCollection(ctx, "docs", 2)

	chunks := []domain.Chunk{chunk("keep.txt", 0, "x"), chunk("drop.txt", 0, "y")}
	_ = s.Upsert(ctx, "docs", chunks, [][]float32{{1, 0}, {1, 0}})

	hits, err := s.Search(ctx, "docs", []float32{1, 0}, 10, store.Filter{Sources: []string{"keep.txt"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.Source != "keep.txt" {
		t.Errorf("filter not applied: %+v", hits)
	}
}

func TestSearch_MissingCollection(t *testing.T) {
	s := newStore(t)
	_, err := s.Search(context.Background(), "absent", []float32{1}, 3, store.Filter{})
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_ = s.CreateCollection(ctx, "docs", 3)

	err := s.Upsert(ctx, "docs", []domain.Chunk{chunk("a", 0, "x")}, [][]float32{{1, 0}})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestUpsert_ReplacesExistingID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_ = s.CreateCollection(ctx, "docs", 2)

	_ = s.Upsert(ctx, "docs", []domain.Chunk{chunk("a.txt", 0, "old")}, [][]float32{{1, 0}})
	_ = s.Upsert(ctx, "docs", []domain.Chunk{chunk("a.txt", 0, "new")}, [][]float32{{0, 1}})

	hits, _ := s.Search(ctx, "docs", []float32{0, 1}, 10, store.Filter{})
	if len(hits) != 1 {
		t.Fatalf("expected re-upsert to replace, got %d hits", len(hits))
	}
	if hits[0].Chunk.Text != "new" {
		t.Errorf("expected replaced text, got %q", hits[0].Chunk.Text)
	}
}

func TestDeleteCollection_Complete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_ = s.CreateCollection(ctx, "docs", 2)
	_ = s.Upsert(ctx, "docs", []domain.Chunk{chunk("a", 0, "x")}, [][]float32{{1, 0}})

	if err := s.DeleteCollection(ctx, "docs"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Searching the deleted collection is a well-defined not-found.
	if _, err := s.Search(ctx, "docs", []float32{1, 0}, 3, store.Filter{}); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound after delete, got %v", err)
	}

	// Recreating under the same name must not leak old chunks.
	_ = s.CreateCollection(ctx, "docs", 2)
	hits, err := s.Search(ctx, "docs", []float32{1, 0}, 3, store.Filter{})
	if err != nil {
		t.Fatalf("search after recreate: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale chunks leaked into recreated collection: %+v", hits)
	}
}

func TestDeleteCollection_MissingIsNotAnError(t *testing.T) {
	s := newStore(t)
	if err := s.DeleteCollection(context.Background(), "never-existed"); err != nil {
		t.Errorf("deleting a missing collection must be benign, got %v", err)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.gob")

	s1, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_ = s1.CreateCollection(ctx, "docs", 2)
	_ = s1.Upsert(ctx, "docs", []domain.Chunk{chunk("a.txt", 0, "persisted")}, [][]float32{{1, 0}})
	if err := s1.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	hits, err := s2.Search(ctx, "docs", []float32{1, 0}, 1, store.Filter{})
	if err != nil {
		t.Fatalf("search after reload: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.Text != "persisted" {
		t.Errorf("snapshot did not round-trip: %+v", hits)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors should score ~1, got %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors should score 0, got %f", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector should score 0, got %f", got)
	}
}
