package retrieval

import (
	"context"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
	domret "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain/retrieval"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/index/bm25"
)

// DenseIndex is the storage contract for the embedding side.
type DenseIndex interface {
	Add(ctx context.Context, docs []domain.Document, vectors [][]float32) error
	Query(ctx context.Context, vector []float32, n int) ([]domret.StoredDocument, error)
	GetMulti(ctx context.Context, ids []string) ([]domain.Document, error)
	Count(ctx context.Context) (int, error)
	ListAll(ctx context.Context) ([]domain.Document, error)
}

// SparseIndex scores every indexed document for a query with raw BM25.
type SparseIndex interface {
	Scores(query string) (map[string]float64, error)
	Len() int
}

// SparseFactory builds a fresh sparse index snapshot from a full corpus.
type SparseFactory interface {
	Build(docs []domain.Document) (SparseIndex, error)
}

// BM25Factory is the default SparseFactory, backed by the in-process
// Okapi BM25 index.
type BM25Factory struct{}

type bm25Adapter struct {
	idx *bm25.Index
}

func (a *bm25Adapter) Scores(query string) (map[string]float64, error) {
	return a.idx.Scores(query), nil
}

func (a *bm25Adapter) Len() int { return a.idx.Len() }

// Build constructs an immutable BM25 snapshot.
func (BM25Factory) Build(docs []domain.Document) (SparseIndex, error) {
	return &bm25Adapter{idx: bm25.Build(docs)}, nil
}
