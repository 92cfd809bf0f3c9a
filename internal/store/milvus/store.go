// Package milvus implements the vector store on Milvus via the v2 SDK.
// Chunks are rows keyed by their chunk ID, with an HNSW index over the
// embedding field using the COSINE metric, so scores come back as similarity.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/store"
)

// Compile-time check: Store implements store.VectorStore.
var _ store.VectorStore = (*Store)(nil)

const (
	maxIDLen      = 512
	maxSourceLen  = 512
	maxContentLen = 65535
)

// Config holds connection parameters.
type Config struct {
	Address  string
	Username string
	Password string
	Database string
	HNSWM    int
	HNSWEFC  int
}

// Store implements store.VectorStore on Milvus.
type Store struct {
	client *milvusclient.Client
	hnswM  int
	hnswEF int
}

// NewStore connects to Milvus.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	hnswM := cfg.HNSWM
	if hnswM <= 0 {
		hnswM = 32
	}
	hnswEF := cfg.HNSWEFC
	if hnswEF <= 0 {
		hnswEF = 400
	}

	return &Store{client: c, hnswM: hnswM, hnswEF: hnswEF}, nil
}

// CreateCollection creates the collection, its vector index and loads it.
// An existing collection is left untouched.
func (s *Store) CreateCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", dim)
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().
		WithName(name).
		WithField(entity.NewField().
			WithName("chunk_id").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxIDLen).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim))).
		WithField(entity.NewField().
			WithName("source").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxSourceLen)).
		WithField(entity.NewField().
			WithName("page").
			WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().
			WithName("idx").
			WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().
			WithName("content").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxContentLen))

	if err := s.client.CreateCollection(ctx,
		milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}

	idx := index.NewHNSWIndex(entity.COSINE, s.hnswM, s.hnswEF)
	idxTask, err := s.client.CreateIndex(ctx,
		milvusclient.NewCreateIndexOption(name, "embedding", idx))
	if err != nil {
		return fmt.Errorf("create index for %s: %w", name, err)
	}
	if err := idxTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for index on %s: %w", name, err)
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("load collection %s: %w", name, err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for load of %s: %w", name, err)
	}
	return nil
}

// Upsert writes chunk+vector pairs column-wise, replacing existing chunk IDs,
// then flushes so the data is searchable immediately.
func (s *Store) Upsert(ctx context.Context, collection string, chunks []domain.Chunk, vectors [][]float32) error {
	dim, err := s.collectionDim(ctx, collection)
	if err != nil {
		return err
	}
	if err := store.ValidateUpsert(chunks, vectors, dim); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	sources := make([]string, len(chunks))
	pages := make([]int64, len(chunks))
	indices := make([]int64, len(chunks))
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		sources[i] = c.Source
		pages[i] = int64(c.Page)
		indices[i] = int64(c.Index)
		contents[i] = c.Text
	}

	cols := []column.Column{
		column.NewColumnVarChar("chunk_id", ids),
		column.NewColumnFloatVector("embedding", dim, vectors),
		column.NewColumnVarChar("source", sources),
		column.NewColumnInt64("page", pages),
		column.NewColumnInt64("idx", indices),
		column.NewColumnVarChar("content", contents),
	}

	if _, err := s.client.Upsert(ctx,
		milvusclient.NewColumnBasedInsertOption(collection, cols...)); err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}

	flushTask, err := s.client.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err != nil {
		return fmt.Errorf("flush %s: %w", collection, err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for flush of %s: %w", collection, err)
	}
	return nil
}

// Search runs an ANN query, optionally pre-filtered by source.
func (s *Store) Search(
	ctx context.Context, collection string, vector []float32, topK int, f store.Filter,
) ([]domain.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collection))
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return nil, fmt.Errorf("collection %s: %w", collection, domain.ErrCollectionNotFound)
	}

	opt := milvusclient.NewSearchOption(collection, topK,
		[]entity.Vector{entity.FloatVector(vector)}).
		WithANNSField("embedding").
		WithSearchParam("ef", strconv.Itoa(s.hnswEF)).
		WithOutputFields("chunk_id", "source", "page", "idx", "content")

	if expr := sourceFilterExpr(f); expr != "" {
		opt = opt.WithFilter(expr)
	}

	results, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	return parseHits(results[0])
}

// DeleteCollection drops the collection. A missing name means nothing to delete.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if !exists {
		return nil
	}

	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	return nil
}

// Ping checks connectivity by listing collections.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.ListCollections(ctx, milvusclient.NewListCollectionOption()); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	_ = s.client.Close(context.Background())
}

// collectionDim reads the embedding dimension from the collection schema.
func (s *Store) collectionDim(ctx context.Context, name string) (int, error) {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return 0, fmt.Errorf("check collection %s: %w", name, err)
	}
	if !exists {
		return 0, fmt.Errorf("collection %s: %w", name, domain.ErrCollectionNotFound)
	}

	desc, err := s.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(name))
	if err != nil {
		return 0, fmt.Errorf("describe collection %s: %w", name, err)
	}
	for _, field := range desc.Schema.Fields {
		if field.Name != "embedding" {
			continue
		}
		dimStr, ok := field.TypeParams[entity.TypeParamDim]
		if !ok {
			break
		}
		dim, err := strconv.Atoi(dimStr)
		if err != nil {
			return 0, fmt.Errorf("corrupt dim for %s: %w", name, err)
		}
		return dim, nil
	}
	return 0, fmt.Errorf("collection %s has no embedding field", name)
}

func parseHits(res milvusclient.ResultSet) ([]domain.SearchHit, error) {
	hits := make([]domain.SearchHit, 0, res.ResultCount)
	for i := 0; i < res.ResultCount; i++ {
		var c domain.Chunk
		for _, field := range res.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				switch col.Name() {
				case "chunk_id":
					c.ID = col.Data()[i]
				case "source":
					c.Source = col.Data()[i]
				case "content":
					c.Text = col.Data()[i]
				}
			case *column.ColumnInt64:
				switch col.Name() {
				case "page":
					c.Page = int(col.Data()[i])
				case "idx":
					c.Index = int(col.Data()[i])
				}
			}
		}

		score := float64(res.Scores[i])
		if score < 0 {
			score = 0
		}
		hits = append(hits, domain.SearchHit{Chunk: c, Score: score})
	}
	return hits, nil
}

// sourceFilterExpr renders the optional source restriction as a boolean expression.
func sourceFilterExpr(f store.Filter) string {
	if len(f.Sources) == 0 {
		return ""
	}
	expr := `source in [`
	for i, src := range f.Sources {
		if i > 0 {
			expr += ", "
		}
		expr += strconv.Quote(src)
	}
	return expr + `]`
}
