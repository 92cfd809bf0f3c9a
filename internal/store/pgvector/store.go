// Package pgvector implements the vector store on PostgreSQL with the
// pgvector extension. Collections are rows keyed by logical name; embeddings
// live in a child table ordered by cosine distance at query time.
package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/store"
)

// Compile-time check: Store implements store.VectorStore.
var _ store.VectorStore = (*Store)(nil)

// querier is the subset of pgxpool.Pool the store uses, defined here so
// tests can substitute a fake.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

// Store implements store.VectorStore on PostgreSQL + pgvector.
type Store struct {
	db   querier
	pool *pgxpool.Pool // nil in tests
}

// NewStore connects to PostgreSQL and ensures the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	s := &Store{db: pool, pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newStoreForTest(db querier) *Store {
	return &Store{db: db}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS rag_collection (
			id   uuid PRIMARY KEY,
			name text NOT NULL UNIQUE,
			dim  int  NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rag_embedding (
			collection_id uuid NOT NULL REFERENCES rag_collection(id) ON DELETE CASCADE,
			chunk_id      text NOT NULL,
			source        text NOT NULL,
			page          int  NOT NULL,
			idx           int  NOT NULL,
			content       text NOT NULL,
			embedding     vector NOT NULL,
			PRIMARY KEY (collection_id, chunk_id)
		)`,
		`CREATE INDEX IF NOT EXISTS rag_embedding_source_idx
			ON rag_embedding (collection_id, source)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateCollection registers a collection row. ON CONFLICT keeps the first
// registration, so re-creating an existing collection is a no-op.
func (s *Store) CreateCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", dim)
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO rag_collection (id, name, dim) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		uuid.New(), name, dim)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes chunk+vector pairs in one batch. pgx runs a batch inside an
// implicit transaction, so a mid-batch failure leaves nothing behind.
func (s *Store) Upsert(ctx context.Context, collection string, chunks []domain.Chunk, vectors [][]float32) error {
	id, dim, err := s.resolve(ctx, collection)
	if err != nil {
		return err
	}
	if err := store.ValidateUpsert(chunks, vectors, dim); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(
			`INSERT INTO rag_embedding (collection_id, chunk_id, source, page, idx, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (collection_id, chunk_id) DO UPDATE
			 SET source = EXCLUDED.source, page = EXCLUDED.page, idx = EXCLUDED.idx,
			     content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
			id, c.ID, c.Source, c.Page, c.Index, c.Text, pgv.NewVector(vectors[i]))
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", chunks[i].ID, err)
		}
	}
	return nil
}

// Search orders by cosine distance and converts it to descending similarity.
func (s *Store) Search(
	ctx context.Context, collection string, vector []float32, topK int, f store.Filter,
) ([]domain.SearchHit, error) {
	id, dim, err := s.resolve(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("query vector dimension %d, want %d: %w",
			len(vector), dim, domain.ErrVectorDimMismatch)
	}
	if topK <= 0 {
		return nil, nil
	}

	query := `SELECT chunk_id, source, page, idx, content,
			1 - (embedding <=> $2) AS similarity
		FROM rag_embedding
		WHERE collection_id = $1`
	args := []any{id, pgv.NewVector(vector)}

	if len(f.Sources) > 0 {
		query += ` AND source = ANY($3)`
		args = append(args, f.Sources)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $2 LIMIT %d`, topK)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var h domain.SearchHit
		if err := rows.Scan(&h.Chunk.ID, &h.Chunk.Source, &h.Chunk.Page,
			&h.Chunk.Index, &h.Chunk.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if h.Score < 0 {
			h.Score = 0
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	return hits, nil
}

// DeleteCollection resolves the name first, then removes the collection row.
// Embeddings go with it via ON DELETE CASCADE. A missing name is benign.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	id, _, err := s.resolve(ctx, name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM rag_collection WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) resolve(ctx context.Context, name string) (uuid.UUID, int, error) {
	var id uuid.UUID
	var dim int
	err := s.db.QueryRow(ctx,
		`SELECT id, dim FROM rag_collection WHERE name = $1`, name).Scan(&id, &dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, 0, fmt.Errorf("collection %s: %w", name, domain.ErrCollectionNotFound)
	}
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("resolve collection %s: %w", name, err)
	}
	return id, dim, nil
}
