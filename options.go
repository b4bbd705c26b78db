package cuspera

import (
	"go.uber.org/zap"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
	retrievaluc "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/usecase/retrieval"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs    []string
	password string

	embedder      Embedder
	openaiKey     string
	openaiBaseURL string
	model         string

	collection       string
	vectorDimensions int
	cacheEmbeddings  bool

	retrieval retrievaluc.Options

	logger *zap.Logger
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		collection:       "products",
		vectorDimensions: domain.DefaultVectorConfig().Dimensions,
		model:            domain.DefaultVectorConfig().Model,
		retrieval:        retrievaluc.DefaultOptions(),
		logger:           zap.NewNop(),
	}
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithEmbedder sets a custom text embedding provider. Overrides WithOpenAI.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithOpenAI configures the OpenAI-compatible embedding provider with the
// given API key. baseURL is optional (empty = api.openai.com).
func WithOpenAI(apiKey string, baseURL ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openaiKey = apiKey
		if len(baseURL) > 0 {
			c.openaiBaseURL = baseURL[0]
		}
	})
}

// WithModel sets the embedding model name.
// Defaults to text-embedding-3-small.
func WithModel(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.model = model
	})
}

// WithCollection sets the collection name documents are stored under.
// Defaults to "products".
func WithCollection(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.collection = name
	})
}

// WithVectorDimensions sets the embedding dimension.
// Defaults to 1536 (text-embedding-3-small).
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithHybrid enables or disables the sparse signal. Defaults to enabled.
func WithHybrid(enabled bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.retrieval.UseHybrid = enabled
	})
}

// WithWeights sets the fusion weights. They are normalized to sum to 1;
// both zero fails construction. Defaults: 0.6 semantic, 0.4 keyword.
func WithWeights(semantic, keyword float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.retrieval.SemanticWeight = semantic
		c.retrieval.KeywordWeight = keyword
	})
}

// WithDefaultTopK sets the result count used when Retrieve is called with
// topK <= 0. Defaults to 5.
func WithDefaultTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.retrieval.DefaultTopK = k
	})
}

// WithCandidateBounds controls how many dense candidates are fetched
// before fusion: min(topK*multiplier, limit). Defaults: 2, 20.
func WithCandidateBounds(multiplier, limit int) Option {
	return optionFunc(func(c *clientConfig) {
		c.retrieval.CandidateMultiplier = multiplier
		c.retrieval.CandidateCap = limit
	})
}

// WithKeywordDivisor sets the BM25 normalization divisor. Defaults to 10.
func WithKeywordDivisor(d float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.retrieval.KeywordDivisor = d
	})
}

// WithEmbeddingCache caches embeddings in the backing store, keyed by a
// content hash.
func WithEmbeddingCache() Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheEmbeddings = true
	})
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
