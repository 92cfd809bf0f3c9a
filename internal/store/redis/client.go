// Package redis implements the vector store against Redis 8+ / Valkey with
// the FT.SEARCH module, via rueidis. Collections map to one HNSW index plus
// one hash per chunk under a shared key prefix.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/rueidis"

	"github.com/docuquery/docuquery/internal/store"
)

// Compile-time check: Store implements store.VectorStore.
var _ store.VectorStore = (*Store)(nil)

// DefaultKeyPrefix namespaces every key and index the store creates.
const DefaultKeyPrefix = "docuquery:"

// Config holds connection parameters. Redis and Valkey share the same
// wire protocol, so one adapter serves both drivers.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	HNSWM     int
	HNSWEFC   int
}

// Store implements store.VectorStore on rueidis.
type Store struct {
	client rueidis.Client
	prefix string
	hnswM  int
	hnswEF int
}

// NewStore connects to Redis/Valkey.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	hnswM := cfg.HNSWM
	if hnswM <= 0 {
		hnswM = 32
	}
	hnswEF := cfg.HNSWEFC
	if hnswEF <= 0 {
		hnswEF = 400
	}

	return &Store{client: client, prefix: prefix, hnswM: hnswM, hnswEF: hnswEF}, nil
}

// NewStoreForTest wraps a pre-built (typically mocked) client.
func NewStoreForTest(client rueidis.Client) *Store {
	return &Store{client: client, prefix: DefaultKeyPrefix, hnswM: 32, hnswEF: 400}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// Chunk keys live in their own namespace so the DeleteCollection key sweep
// can never match another collection's metadata, whatever the name.
func (s *Store) metaKey(collection string) string {
	return s.prefix + "meta:" + collection
}

func (s *Store) chunkKey(collection, id string) string {
	return s.chunkPrefix(collection) + id
}

func (s *Store) chunkPrefix(collection string) string {
	return s.prefix + "chunk:" + collection + ":"
}

func (s *Store) indexName(collection string) string {
	return s.prefix + collection + ":idx"
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
