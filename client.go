package cuspera

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbRedis "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/db/redis"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
	domret "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain/retrieval"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/metrics"
	densrepo "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/repository/dense"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/repository/embcache"
	openaiEmb "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/transport/openai"
	embeddinguc "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/usecase/embedding"
	retrievaluc "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/usecase/retrieval"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the cuspera retrieval SDK entry point.
type Client struct {
	store      *dbRedis.Store
	dense      *densrepo.Repo
	retriever  *retrievaluc.Service
	collection string
	vectorDim  int
}

// New creates a Client, connects to the backing store, and ensures the
// dense index exists. Retrieval options are validated here: a fusion
// configuration with both weights zero is rejected.
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("cuspera: database address required (use WithRedis)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("cuspera: create store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("cuspera: database not ready: %w", err)
	}

	client, err := wireClient(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return client, nil
}

func wireClient(store *dbRedis.Store, cfg *clientConfig) (*Client, error) {
	embedder, err := buildEmbedder(store, cfg)
	if err != nil {
		return nil, err
	}

	dense := densrepo.New(store, cfg.collection, cfg.vectorDimensions)
	if err := dense.EnsureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("cuspera: ensure index: %w", err)
	}

	retriever, err := retrievaluc.New(embedder, embedder, dense, nil, cfg.retrieval, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("cuspera: %w", err)
	}

	return &Client{
		store:      store,
		dense:      dense,
		retriever:  retriever,
		collection: cfg.collection,
		vectorDim:  cfg.vectorDimensions,
	}, nil
}

// buildEmbedder assembles the embedder chain: resilient -> cached -> transport.
func buildEmbedder(store *dbRedis.Store, cfg *clientConfig) (domain.Embedder, error) {
	var inner domain.Embedder

	switch {
	case cfg.embedder != nil:
		inner = &embedderAdapter{inner: cfg.embedder}
	case cfg.openaiKey != "":
		inner = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.openaiKey,
			BaseURL:    cfg.openaiBaseURL,
			Model:      cfg.model,
			Dimensions: cfg.vectorDimensions,
			Provider:   "openai",
			Logger:     cfg.logger,
		})
	default:
		return nil, errors.New(
			"cuspera: embedding provider required (use WithOpenAI or WithEmbedder)")
	}

	if cfg.cacheEmbeddings {
		inner = embcache.New(inner, store, metrics.EmbeddingCacheTotal, cfg.logger)
	}

	return embeddinguc.NewResilient(inner, embeddinguc.DefaultConfig(), cfg.logger), nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// IndexDocuments embeds and indexes a batch of documents in both indexes.
func (c *Client) IndexDocuments(ctx context.Context, docs []Document) error {
	internal := make([]domain.Document, len(docs))
	for i, d := range docs {
		internal[i] = domain.Document(d)
	}
	return c.retriever.IndexDocuments(ctx, internal)
}

// Retrieve returns the topK highest-scoring documents for the query.
// topK <= 0 uses the configured default.
func (c *Client) Retrieve(ctx context.Context, query string, topK int) (Response, error) {
	if topK <= 0 {
		topK = c.retriever.Options().DefaultTopK
	}

	resp, err := c.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return Response{}, err
	}
	return convertResponse(resp), nil
}

// Explain returns the unmerged dense and sparse ranked lists and the
// effective fusion weights, for diagnostics.
func (c *Client) Explain(ctx context.Context, query string) (Explanation, error) {
	expl, err := c.retriever.Explain(ctx, query)
	if err != nil {
		return Explanation{}, err
	}

	out := Explanation{
		Query:          expl.Query,
		SemanticWeight: expl.SemanticWeight,
		KeywordWeight:  expl.KeywordWeight,
	}
	for _, cand := range expl.Dense {
		out.Semantic = append(out.Semantic, Candidate(cand))
	}
	for _, cand := range expl.Sparse {
		out.Keyword = append(out.Keyword, Candidate(cand))
	}
	return out, nil
}

// RebuildSparse rebuilds the sparse index from the persisted documents.
// Call it after process restart to restore hybrid service, or rely on the
// lazy rebuild the first Retrieve performs.
func (c *Client) RebuildSparse(ctx context.Context) error {
	return c.retriever.RebuildSparse(ctx)
}

// Degraded reports whether hybrid queries are currently served dense-only.
func (c *Client) Degraded() bool {
	return c.retriever.Degraded()
}

// Stats returns collection statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	count, err := c.dense.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count: %w", err)
	}
	return Stats{
		Collection: c.collection,
		Count:      count,
		VectorDim:  c.vectorDim,
		Degraded:   c.retriever.Degraded(),
	}, nil
}

// Drop removes the collection: the dense index, all stored documents, and
// the in-memory sparse snapshot.
func (c *Client) Drop(ctx context.Context) error {
	if err := c.dense.Drop(ctx); err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	return c.retriever.RebuildSparse(ctx)
}

func convertResponse(resp domret.Response) Response {
	out := Response{
		Query:   resp.Query,
		Mode:    SearchMode(resp.Mode),
		Results: make([]Result, len(resp.Results)),
	}
	for i, r := range resp.Results {
		out.Results[i] = Result{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
			Scores: Scores{
				Combined: r.Scores.Combined,
				Semantic: r.Scores.Semantic,
				Keyword:  r.Scores.Keyword,
			},
		}
	}
	return out
}

// embedderAdapter wraps the public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w: %w", err, domain.ErrEmbeddingProvider)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// BatchEmbed forwards to the public BatchEmbedder when available.
func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := a.inner.(BatchEmbedder); ok {
		r, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w: %w", err, domain.ErrEmbeddingProvider)
		}
		return domain.BatchEmbeddingResult{
			Embeddings:   r.Embeddings,
			PromptTokens: r.PromptTokens,
			TotalTokens:  r.TotalTokens,
		}, nil
	}
	return domain.BatchFallback(ctx, a, texts)
}
