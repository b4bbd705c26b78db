// Package retrieval implements the hybrid retriever: it coordinates
// indexing across the dense and sparse indexes, runs both searches,
// normalizes and fuses the two score streams, and ranks the union.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
	domret "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain/retrieval"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/metrics"
)

// sparseHolder wraps the current sparse snapshot for atomic publication.
type sparseHolder struct {
	idx SparseIndex
}

// Service is the hybrid retriever. Single-writer, multi-reader: writers
// (IndexDocuments, RebuildSparse) are serialized by mu; readers see the
// sparse index only through an atomic pointer swap, so no query ever
// observes a half-built snapshot.
type Service struct {
	opts       Options
	docEmbed   domain.Embedder
	queryEmbed domain.Embedder
	dense      DenseIndex
	factory    SparseFactory
	logger     *zap.Logger

	mu       sync.Mutex
	sparse   atomic.Pointer[sparseHolder]
	degraded atomic.Bool
}

// New creates a hybrid retriever. The two embedders must share one
// provider and dimension; they differ only in instruction decoration.
// Fusion weights are normalized to sum to 1; a configuration with both
// weights zero is rejected.
func New(
	docEmbed, queryEmbed domain.Embedder,
	dense DenseIndex,
	factory SparseFactory,
	opts Options,
	logger *zap.Logger,
) (*Service, error) {
	normalized, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if factory == nil {
		factory = BM25Factory{}
	}
	return &Service{
		opts:       normalized,
		docEmbed:   docEmbed,
		queryEmbed: queryEmbed,
		dense:      dense,
		factory:    factory,
		logger:     logger,
	}, nil
}

// Options returns the effective (normalized) configuration.
func (s *Service) Options() Options {
	return s.opts
}

// Degraded reports whether the collection is serving dense-only because
// the last sparse rebuild failed.
func (s *Service) Degraded() bool {
	return s.degraded.Load()
}

// IndexDocuments validates and indexes a batch: embeds contents, appends
// them to the dense index, then rebuilds the sparse index over the full
// corpus. A dense failure leaves both indexes untouched; a sparse rebuild
// failure leaves the collection degraded (dense queries keep working,
// hybrid queries fall back) until a later batch or RebuildSparse succeeds.
func (s *Service) IndexDocuments(ctx context.Context, docs []domain.Document) error {
	if err := domain.ValidateBatch(docs); err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].Content
	}

	embedded, err := domain.BatchEmbed(ctx, s.docEmbed, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dense.Add(ctx, docs, embedded.Embeddings); err != nil {
		return fmt.Errorf("add to dense index: %w", err)
	}
	metrics.IndexedDocumentsTotal.Add(float64(len(docs)))

	s.rebuildSparseLocked(ctx)
	return nil
}

// RebuildSparse rebuilds the sparse index from the documents persisted in
// the dense store. This is the recovery entry point after a restart or a
// degraded batch.
func (s *Service) RebuildSparse(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tryRebuildSparseLocked(ctx); err != nil {
		metrics.SparseRebuildsTotal.WithLabelValues("error").Inc()
		s.degraded.Store(true)
		return fmt.Errorf("rebuild sparse index: %w: %w", err, domain.ErrSparseIndex)
	}
	return nil
}

// rebuildSparseLocked rebuilds the sparse index and downgrades instead of
// failing: dense state is already committed, so the batch is reported as
// accepted and only hybrid service degrades.
func (s *Service) rebuildSparseLocked(ctx context.Context) {
	if err := s.tryRebuildSparseLocked(ctx); err != nil {
		metrics.SparseRebuildsTotal.WithLabelValues("error").Inc()
		if !s.degraded.Swap(true) {
			s.logger.Warn("Sparse index rebuild failed; serving dense-only until re-index",
				zap.Error(err))
		}
	}
}

func (s *Service) tryRebuildSparseLocked(ctx context.Context) error {
	corpus, err := s.dense.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	idx, err := s.factory.Build(corpus)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	s.sparse.Store(&sparseHolder{idx: idx})
	s.degraded.Store(false)
	metrics.SparseRebuildsTotal.WithLabelValues("success").Inc()
	return nil
}

// currentSparse returns the published sparse snapshot, or nil before the
// first successful build.
func (s *Service) currentSparse() SparseIndex {
	if h := s.sparse.Load(); h != nil {
		return h.idx
	}
	return nil
}

// Retrieve answers a query with the topK highest-scoring documents under
// the configured fusion weights. topK must be positive; callers that want
// the configured default pass Options().DefaultTopK.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) (domret.Response, error) {
	if query == "" {
		return domret.Response{}, fmt.Errorf("query must not be empty: %w", domain.ErrValidation)
	}
	if topK <= 0 {
		return domret.Response{}, fmt.Errorf("top_k must be positive, got %d: %w", topK, domain.ErrValidation)
	}

	start := time.Now()
	resp, err := s.retrieve(ctx, query, topK)
	if err != nil {
		return domret.Response{}, err
	}

	mode := string(resp.Mode)
	metrics.RetrievalSearchesTotal.WithLabelValues(mode).Inc()
	metrics.RetrievalDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	return resp, nil
}

func (s *Service) retrieve(ctx context.Context, query string, topK int) (domret.Response, error) {
	embedded, err := s.queryEmbed.Embed(ctx, query)
	if err != nil {
		return domret.Response{}, fmt.Errorf("embed query: %w: %w", err, domain.ErrRetrieval)
	}

	candidateK := s.opts.candidateK(topK)
	denseHits, err := s.dense.Query(ctx, embedded.Embedding, candidateK)
	if err != nil {
		return domret.Response{}, fmt.Errorf("dense query: %w: %w", err, domain.ErrRetrieval)
	}

	if !s.opts.UseHybrid {
		return domret.Response{
			Query:   query,
			Mode:    domret.ModeSemantic,
			Results: rankDense(denseHits, topK),
		}, nil
	}

	sparseScores, ok := s.sparseScores(ctx, query)
	if !ok {
		metrics.RetrievalFallbacksTotal.Inc()
		return domret.Response{
			Query:   query,
			Mode:    domret.ModeSemantic,
			Results: rankDense(denseHits, topK),
		}, nil
	}

	ranked := fuseHybrid(denseHits, sparseScores, s.opts)
	metrics.RetrievalCandidates.Observe(float64(len(ranked)))
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results, err := s.materialize(ctx, ranked)
	if err != nil {
		return domret.Response{}, fmt.Errorf("%w: %w", err, domain.ErrRetrieval)
	}

	return domret.Response{Query: query, Mode: domret.ModeHybrid, Results: results}, nil
}

// sparseScores runs the sparse side of a hybrid query. Returns ok=false
// when the sparse index is unavailable and the query should fall back to
// dense-only.
func (s *Service) sparseScores(ctx context.Context, query string) (map[string]float64, bool) {
	sparse := s.currentSparse()

	// Lazy recovery: a fresh process serving a persisted collection has
	// dense state but no sparse snapshot yet.
	if sparse == nil && !s.degraded.Load() {
		if err := s.RebuildSparse(ctx); err != nil {
			s.logger.Warn("Lazy sparse rebuild failed; falling back to dense-only", zap.Error(err))
			return nil, false
		}
		sparse = s.currentSparse()
	}
	if sparse == nil || s.degraded.Load() {
		return nil, false
	}

	scores, err := sparse.Scores(query)
	if err != nil {
		s.logger.Warn("Sparse scoring failed; falling back to dense-only", zap.Error(err))
		return nil, false
	}
	return scores, true
}

// materialize turns ranked fusion candidates into results, fetching
// content and metadata from the dense store for documents the dense
// stream did not supply.
func (s *Service) materialize(ctx context.Context, ranked []fused) ([]domret.Result, error) {
	var missing []string
	for i := range ranked {
		if ranked[i].dense == nil {
			missing = append(missing, ranked[i].id)
		}
	}

	byID := make(map[string]domain.Document, len(missing))
	if len(missing) > 0 {
		docs, err := s.dense.GetMulti(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("fetch fused documents: %w", err)
		}
		for _, d := range docs {
			byID[d.ID] = d
		}
	}

	results := make([]domret.Result, 0, len(ranked))
	for i := range ranked {
		f := &ranked[i]

		var doc domain.Document
		if f.dense != nil {
			doc = f.dense.Doc
		} else {
			var ok bool
			if doc, ok = byID[f.id]; !ok {
				// Sparse snapshot ahead of the dense store; skip rather than
				// return a result without content.
				continue
			}
		}

		kw := f.keyword
		results = append(results, domret.Result{
			ID:       f.id,
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Scores: domret.Scores{
				Combined: f.combined,
				Semantic: f.semantic,
				Keyword:  &kw,
			},
		})
	}
	return results, nil
}

// Explain returns the unmerged dense and sparse ranked lists with the
// effective weights, for diagnostics. Read-only; a sparse failure yields
// an empty keyword list rather than an error.
func (s *Service) Explain(ctx context.Context, query string) (domret.Explanation, error) {
	if query == "" {
		return domret.Explanation{}, fmt.Errorf("query must not be empty: %w", domain.ErrValidation)
	}

	expl := domret.Explanation{
		Query:          query,
		SemanticWeight: s.opts.SemanticWeight,
		KeywordWeight:  s.opts.KeywordWeight,
	}

	embedded, err := s.queryEmbed.Embed(ctx, query)
	if err != nil {
		return domret.Explanation{}, fmt.Errorf("embed query: %w: %w", err, domain.ErrRetrieval)
	}

	denseHits, err := s.dense.Query(ctx, embedded.Embedding, s.opts.DefaultTopK)
	if err != nil {
		return domret.Explanation{}, fmt.Errorf("dense query: %w: %w", err, domain.ErrRetrieval)
	}
	for i := range denseHits {
		expl.Dense = append(expl.Dense, domret.Candidate{
			ID:    denseHits[i].Doc.ID,
			Score: semanticScore(denseHits[i].Distance),
		})
	}

	if scores, ok := s.sparseScores(ctx, query); ok {
		expl.Sparse = topSparse(scores, s.opts.DefaultTopK, s.opts.KeywordDivisor)
	}

	return expl, nil
}

// topSparse returns the best-scoring sparse candidates, normalized,
// sorted by score descending with ties broken by id.
func topSparse(raw map[string]float64, n int, divisor float64) []domret.Candidate {
	out := make([]domret.Candidate, 0, len(raw))
	for id, s := range raw {
		out = append(out, domret.Candidate{ID: id, Score: keywordScore(s, divisor)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
