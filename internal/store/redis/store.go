package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/docuquery/docuquery/internal/domain"
	"github.com/docuquery/docuquery/internal/store"
)

// CreateCollection registers a collection: a metadata hash recording the
// dimension plus an FT index with an HNSW vector field over the collection's
// key prefix. Creating an existing collection is a no-op.
func (s *Store) CreateCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", dim)
	}

	existing, err := s.collectionDim(ctx, name)
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	args := []string{
		s.indexName(name),
		"ON", "HASH",
		"PREFIX", "1", s.chunkPrefix(name),
		"SCHEMA",
		"source", "TAG", "SEPARATOR", "|",
		"__content", "TEXT",
		"__vector", "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
		"M", strconv.Itoa(s.hnswM),
		"EF_CONSTRUCTION", strconv.Itoa(s.hnswEF),
	}

	cmd := s.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "index already exists") {
		return fmt.Errorf("create index for %s: %w", name, err)
	}

	meta := s.client.B().Hset().Key(s.metaKey(name)).
		FieldValue().FieldValue("dim", strconv.Itoa(dim)).Build()
	if err := s.client.Do(ctx, meta).Error(); err != nil {
		return fmt.Errorf("store collection meta for %s: %w", name, err)
	}
	return nil
}

// Upsert writes one hash per chunk in a single DoMulti round-trip. Chunk IDs
// are stable, so re-ingesting a source overwrites its hashes in place.
func (s *Store) Upsert(ctx context.Context, collection string, chunks []domain.Chunk, vectors [][]float32) error {
	dim, err := s.collectionDim(ctx, collection)
	if err != nil {
		return err
	}
	if dim == 0 {
		return fmt.Errorf("collection %s: %w", collection, domain.ErrCollectionNotFound)
	}
	if err := store.ValidateUpsert(chunks, vectors, dim); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(chunks))
	for i, c := range chunks {
		cmds[i] = s.client.B().Hset().Key(s.chunkKey(collection, c.ID)).
			FieldValue().
			FieldValue("__content", c.Text).
			FieldValue("__vector", vectorToBytes(vectors[i])).
			FieldValue("source", c.Source).
			FieldValue("page", strconv.Itoa(c.Page)).
			FieldValue("idx", strconv.Itoa(c.Index)).
			Build()
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", chunks[i].ID, err)
		}
	}
	return nil
}

// Search runs a KNN query via FT.SEARCH and converts cosine distance to
// descending similarity.
func (s *Store) Search(
	ctx context.Context, collection string, vector []float32, topK int, f store.Filter,
) ([]domain.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	knn := fmt.Sprintf("[KNN %d @__vector $BLOB]", topK)
	queryStr := "*=>" + knn
	if pre := buildSourceFilter(f); pre != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", pre, knn)
	}

	args := []string{
		s.indexName(collection), queryStr,
		"RETURN", "5", "__content", "__vector_score", "source", "page", "idx",
		"SORTBY", "__vector_score",
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return nil, fmt.Errorf("collection %s: %w", collection, domain.ErrCollectionNotFound)
		}
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	return s.parseHits(collection, raw)
}

// DeleteCollection drops the FT index with DD (deleting indexed documents)
// and removes the metadata hash. A missing collection means nothing to delete.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	dim, err := s.collectionDim(ctx, name)
	if err != nil {
		return err
	}
	if dim == 0 {
		return nil
	}

	drop := s.client.B().Arbitrary("FT.DROPINDEX").Args(s.indexName(name), "DD").Build()
	if err := s.client.Do(ctx, drop).Error(); err != nil && !isRedisErr(err, "unknown index name") {
		return fmt.Errorf("drop index for %s: %w", name, err)
	}

	// DD only removes documents the index knows about; sweep stragglers.
	if err := s.deleteByPattern(ctx, s.chunkPrefix(name)+"*"); err != nil {
		return err
	}

	del := s.client.B().Del().Key(s.metaKey(name)).Build()
	if err := s.client.Do(ctx, del).Error(); err != nil {
		return fmt.Errorf("delete collection meta for %s: %w", name, err)
	}
	return nil
}

// collectionDim reads the recorded dimension; 0 means the collection does not exist.
func (s *Store) collectionDim(ctx context.Context, name string) (int, error) {
	cmd := s.client.B().Hget().Key(s.metaKey(name)).Field("dim").Build()
	res := s.client.Do(ctx, cmd)
	if err := res.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read collection meta for %s: %w", name, err)
	}
	str, err := res.ToString()
	if err != nil {
		return 0, fmt.Errorf("read collection meta for %s: %w", name, err)
	}
	dim, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("corrupt dim for %s: %w", name, err)
	}
	return dim, nil
}

func (s *Store) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		scan := s.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build()
		res, err := s.client.Do(ctx, scan).AsScanEntry()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(res.Elements) > 0 {
			del := s.client.B().Del().Key(res.Elements...).Build()
			if err := s.client.Do(ctx, del).Error(); err != nil {
				return fmt.Errorf("delete keys: %w", err)
			}
		}
		cursor = res.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

// parseHits decodes the 2-stride FT.SEARCH reply: [total, key1, fields1, ...].
func (s *Store) parseHits(collection string, raw []rueidis.RedisMessage) ([]domain.SearchHit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	keyPrefix := s.chunkPrefix(collection)
	hits := make([]domain.SearchHit, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fieldsArr, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(fieldsArr)

		chunk := domain.Chunk{
			ID:     strings.TrimPrefix(key, keyPrefix),
			Text:   fields["__content"],
			Source: fields["source"],
		}
		chunk.Page, _ = strconv.Atoi(fields["page"])
		chunk.Index, _ = strconv.Atoi(fields["idx"])

		var score float64
		if str, ok := fields["__vector_score"]; ok {
			if dist, err := strconv.ParseFloat(str, 64); err == nil {
				score = max(0, 1.0-dist) // cosine distance → similarity, clamped to [0,1]
			}
		}

		hits = append(hits, domain.SearchHit{Chunk: chunk, Score: score})
	}
	return hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// buildSourceFilter renders the optional source restriction as a TAG pre-filter.
func buildSourceFilter(f store.Filter) string {
	if len(f.Sources) == 0 {
		return ""
	}
	escaped := make([]string, len(f.Sources))
	for i, src := range f.Sources {
		escaped[i] = tagEscaper.Replace(src)
	}
	return fmt.Sprintf("@source:{%s}", strings.Join(escaped, "|"))
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
