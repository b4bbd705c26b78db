package retrieval

import (
	"context"
	"math"
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
	domret "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain/retrieval"
)

// --- Fakes ---

// fakeDense is an in-memory dense index with real cosine ranking.
type fakeDense struct {
	docs []domain.Document
	vecs [][]float32

	addErr   error
	queryErr error
	listErr  error
	getErr   error

	lastQueryK int
}

func (f *fakeDense) Add(_ context.Context, docs []domain.Document, vectors [][]float32) error {
	if f.addErr != nil {
		return f.addErr
	}
	for i := range docs {
		if j := f.indexOf(docs[i].ID); j >= 0 {
			f.docs[j] = docs[i]
			f.vecs[j] = vectors[i]
			continue
		}
		f.docs = append(f.docs, docs[i])
		f.vecs = append(f.vecs, vectors[i])
	}
	return nil
}

func (f *fakeDense) indexOf(id string) int {
	for i := range f.docs {
		if f.docs[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeDense) Query(_ context.Context, vector []float32, n int) ([]domret.StoredDocument, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.lastQueryK = n

	out := make([]domret.StoredDocument, len(f.docs))
	for i := range f.docs {
		out[i] = domret.StoredDocument{
			Doc:      f.docs[i],
			Distance: 1 - cosine(vector, f.vecs[i]),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (f *fakeDense) GetMulti(_ context.Context, ids []string) ([]domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []domain.Document
	for _, id := range ids {
		if i := f.indexOf(id); i >= 0 {
			out = append(out, f.docs[i])
		}
	}
	return out, nil
}

func (f *fakeDense) Count(_ context.Context) (int, error) {
	return len(f.docs), nil
}

func (f *fakeDense) ListAll(_ context.Context) ([]domain.Document, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Document, len(f.docs))
	copy(out, f.docs)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// stubEmbedder returns canned vectors by exact text, with a fallback.
type stubEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	s.calls++
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return domain.EmbeddingResult{Embedding: v}, nil
	}
	return domain.EmbeddingResult{Embedding: s.fallback}, nil
}

// errSparse fails every scoring call.
type errSparse struct {
	err error
	n   int
}

func (e *errSparse) Scores(string) (map[string]float64, error) { return nil, e.err }
func (e *errSparse) Len() int                                  { return e.n }

// stubSparse returns fixed raw scores.
type stubSparse struct {
	scores map[string]float64
}

func (s *stubSparse) Scores(string) (map[string]float64, error) { return s.scores, nil }
func (s *stubSparse) Len() int                                  { return len(s.scores) }

// factoryFunc adapts a function to SparseFactory.
type factoryFunc func(docs []domain.Document) (SparseIndex, error)

func (f factoryFunc) Build(docs []domain.Document) (SparseIndex, error) { return f(docs) }

// --- Helpers ---

func zapNop() *zap.Logger { return zap.NewNop() }

func newTestService(t *testing.T, embed *stubEmbedder, dense *fakeDense, factory SparseFactory, opts Options) *Service {
	t.Helper()
	svc, err := New(embed, embed, dense, factory, opts, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func mustIndex(t *testing.T, svc *Service, docs []domain.Document) {
	t.Helper()
	if err := svc.IndexDocuments(context.Background(), docs); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}
}
