package docuquery

import "go.uber.org/zap"

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	driver       string // memory, redis, valkey, pgvector, milvus
	snapshotPath string
	addrs        []string
	password     string
	dsn          string
	milvusAddr   string
	hnswM        int
	hnswEFC      int

	embedder  Embedder
	completer Completer

	openaiKey      string
	openaiBaseURL  string
	embeddingModel string
	chatModel      string

	dimensions   int
	chunkSize    int
	chunkOverlap int
	batchSize    int
	extensions   []string
	uploadDir    string

	window  int
	topK    int
	pricing Pricing

	logger *zap.Logger
}

// WithMemoryStore selects the embedded in-process store. snapshotPath ""
// disables persistence across restarts.
func WithMemoryStore(snapshotPath string) Option {
	return func(c *clientConfig) {
		c.driver = "memory"
		c.snapshotPath = snapshotPath
	}
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithValkey configures the client to connect to a Valkey instance.
func WithValkey(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithPgvector configures the client to connect to PostgreSQL with pgvector.
func WithPgvector(dsn string) Option {
	return func(c *clientConfig) {
		c.driver = "pgvector"
		c.dsn = dsn
	}
}

// WithMilvus configures the client to connect to a Milvus instance.
func WithMilvus(address string) Option {
	return func(c *clientConfig) {
		c.driver = "milvus"
		c.milvusAddr = address
	}
}

// WithHNSW configures HNSW index parameters for backends that build one
// (Redis/Valkey and Milvus). Defaults: M=32, EFConstruct=400.
func WithHNSW(m, efConstruct int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFC = efConstruct
	}
}

// WithEmbedder sets a custom text embedding provider.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithCompleter sets a custom chat completion provider.
func WithCompleter(cp Completer) Option {
	return func(c *clientConfig) {
		c.completer = cp
	}
}

// WithOpenAI wires both embedding and chat completion through the OpenAI
// API. Overridden per concern by WithEmbedder / WithCompleter.
func WithOpenAI(apiKey string) Option {
	return func(c *clientConfig) {
		c.openaiKey = apiKey
	}
}

// WithOpenAIBaseURL points the OpenAI client at a compatible endpoint
// (Azure, a local proxy, vLLM).
func WithOpenAIBaseURL(baseURL string) Option {
	return func(c *clientConfig) {
		c.openaiBaseURL = baseURL
	}
}

// WithModels overrides the OpenAI model names. Defaults:
// text-embedding-3-small and gpt-4o-mini.
func WithModels(embeddingModel, chatModel string) Option {
	return func(c *clientConfig) {
		c.embeddingModel = embeddingModel
		c.chatModel = chatModel
	}
}

// WithDimensions sets the embedding dimension collections are created with.
// Defaults to 1536 (text-embedding-3-small).
func WithDimensions(dim int) Option {
	return func(c *clientConfig) {
		c.dimensions = dim
	}
}

// WithChunking overrides the character chunk size and overlap.
// Defaults: 2000 and 150.
func WithChunking(size, overlap int) Option {
	return func(c *clientConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
	}
}

// WithBatchSize sets how many chunk texts go into one embedding API call.
// Default: 64.
func WithBatchSize(size int) Option {
	return func(c *clientConfig) {
		c.batchSize = size
	}
}

// WithExtensions overrides the uploaded-file extension allow-list.
func WithExtensions(exts []string) Option {
	return func(c *clientConfig) {
		c.extensions = exts
	}
}

// WithUploadDir sets the directory where uploaded batches are staged.
// Defaults to the OS temp directory.
func WithUploadDir(dir string) Option {
	return func(c *clientConfig) {
		c.uploadDir = dir
	}
}

// WithWindow sets how many conversation turns are remembered per user.
// Default: 10.
func WithWindow(turns int) Option {
	return func(c *clientConfig) {
		c.window = turns
	}
}

// WithTopK sets how many chunks are retrieved per chat turn when the
// request leaves it unset. Default: 3.
func WithTopK(k int) Option {
	return func(c *clientConfig) {
		c.topK = k
	}
}

// WithPricing sets per-1K-token prices used for chat cost accounting.
// The zero value reports zero cost.
func WithPricing(p Pricing) Option {
	return func(c *clientConfig) {
		c.pricing = p
	}
}

// WithLogger enables structured logging for client operations.
// Nil disables (default).
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
