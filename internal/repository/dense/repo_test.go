package dense

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/db"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
)

func TestAdd_StagesThenPublishes(t *testing.T) {
	repo, ms := newTestRepo(t)

	var staged []db.HashSetItem
	var renamed []db.RenamePair
	ms.hsetMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		staged = items
		return nil
	}
	ms.renameMultiFn = func(_ context.Context, pairs []db.RenamePair) error {
		renamed = pairs
		return nil
	}

	docs := []domain.Document{
		{ID: "a", Content: "hello", Metadata: map[string]any{"product": "acme"}},
		{ID: "b", Content: "world"},
	}
	vecs := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}

	if err := repo.Add(context.Background(), docs, vecs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(staged) != 2 || len(renamed) != 2 {
		t.Fatalf("staged %d, renamed %d", len(staged), len(renamed))
	}
	if !strings.HasPrefix(staged[0].Key, domain.KeyPrefix+"staging:products:") {
		t.Errorf("staging key = %s", staged[0].Key)
	}
	if renamed[0].To != domain.KeyPrefix+"products:a" {
		t.Errorf("publish target = %s", renamed[0].To)
	}
	if staged[0].Fields["content"] != "hello" {
		t.Errorf("content field = %q", staged[0].Fields["content"])
	}
	if !strings.Contains(staged[0].Fields["meta"], `"product":"acme"`) {
		t.Errorf("meta field = %q", staged[0].Fields["meta"])
	}
	if staged[1].Fields["meta"] != "" {
		t.Errorf("empty metadata should omit the meta field, got %q", staged[1].Fields["meta"])
	}
	if len(staged[0].Fields["vector"]) != 16 {
		t.Errorf("vector blob length = %d, want 16", len(staged[0].Fields["vector"]))
	}
}

func TestAdd_VectorCountMismatch(t *testing.T) {
	repo, _ := newTestRepo(t)

	err := repo.Add(context.Background(),
		[]domain.Document{{ID: "a", Content: "x"}}, nil)
	if !errors.Is(err, domain.ErrDenseIndex) {
		t.Fatalf("expected ErrDenseIndex, got %v", err)
	}
}

func TestAdd_StagingFailureCleansUp(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hsetMultiFn = func(context.Context, []db.HashSetItem) error {
		return errors.New("write refused")
	}

	renameCalled := false
	ms.renameMultiFn = func(context.Context, []db.RenamePair) error {
		renameCalled = true
		return nil
	}

	err := repo.Add(context.Background(),
		[]domain.Document{{ID: "a", Content: "x"}}, [][]float32{{1}})
	if !errors.Is(err, domain.ErrDenseIndex) {
		t.Fatalf("expected ErrDenseIndex, got %v", err)
	}
	if renameCalled {
		t.Error("a failed staging write must never publish")
	}
	if len(ms.delMultiCalls) != 1 {
		t.Errorf("staging keys should be cleaned up, got %d del calls", len(ms.delMultiCalls))
	}
}

func TestAdd_PublishFailureCleansUp(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.renameMultiFn = func(context.Context, []db.RenamePair) error {
		return errors.New("rename refused")
	}

	err := repo.Add(context.Background(),
		[]domain.Document{{ID: "a", Content: "x"}}, [][]float32{{1}})
	if !errors.Is(err, domain.ErrDenseIndex) {
		t.Fatalf("expected ErrDenseIndex, got %v", err)
	}
	if len(ms.delMultiCalls) != 1 {
		t.Errorf("staging keys should be cleaned up, got %d del calls", len(ms.delMultiCalls))
	}
}

func TestQuery_ParsesEntries(t *testing.T) {
	repo, ms := newTestRepo(t)

	var gotQuery *db.KNNQuery
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		gotQuery = q
		return &db.SearchResult{
			Total: 2,
			Entries: []db.SearchEntry{
				{
					Key:      domain.KeyPrefix + "products:a",
					Distance: 0.1,
					Fields: map[string]string{
						"content": "hello",
						"meta":    `{"product":"acme","rank":2}`,
					},
				},
				{
					Key:      domain.KeyPrefix + "products:b",
					Distance: 0.6,
					Fields:   map[string]string{"content": "world"},
				},
			},
		}, nil
	}

	hits, err := repo.Query(context.Background(), []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotQuery.IndexName != domain.KeyPrefix+"products:idx" {
		t.Errorf("index name = %s", gotQuery.IndexName)
	}
	if gotQuery.K != 5 {
		t.Errorf("k = %d", gotQuery.K)
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Doc.ID != "a" || hits[0].Distance != 0.1 {
		t.Errorf("hit[0] = %+v", hits[0])
	}
	if hits[0].Doc.Metadata["product"] != "acme" {
		t.Errorf("metadata = %v", hits[0].Doc.Metadata)
	}
	if hits[1].Doc.Metadata != nil {
		t.Errorf("missing meta should stay nil, got %v", hits[1].Doc.Metadata)
	}
}

func TestQuery_Empty(t *testing.T) {
	repo, _ := newTestRepo(t)

	hits, err := repo.Query(context.Background(), []float32{1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestQuery_CorruptMetadata(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return &db.SearchResult{
			Total: 1,
			Entries: []db.SearchEntry{
				{Key: domain.KeyPrefix + "products:a", Fields: map[string]string{"meta": "{broken"}},
			},
		}, nil
	}

	_, err := repo.Query(context.Background(), []float32{1}, 5)
	if !errors.Is(err, domain.ErrDenseIndex) {
		t.Fatalf("expected ErrDenseIndex, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(context.Context, string) (map[string]string, error) {
		return map[string]string{}, nil
	}

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestGetMulti_SkipsMissing(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetMultiFn = func(_ context.Context, keys []string) ([]map[string]string, error) {
		out := make([]map[string]string, len(keys))
		out[0] = map[string]string{"content": "found"}
		// out[1] stays empty: deleted between calls
		return out, nil
	}

	docs, err := repo.GetMulti(context.Background(), []string{"a", "gone"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestListAll_SortedByID(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.scanFn = func(_ context.Context, pattern string) ([]string, error) {
		if pattern != domain.KeyPrefix+"products:*" {
			t.Errorf("scan pattern = %s", pattern)
		}
		return []string{
			domain.KeyPrefix + "products:zeta",
			domain.KeyPrefix + "products:alpha",
		}, nil
	}
	ms.hgetMultiFn = func(_ context.Context, keys []string) ([]map[string]string, error) {
		out := make([]map[string]string, len(keys))
		for i := range keys {
			out[i] = map[string]string{"content": keys[i]}
		}
		return out, nil
	}

	docs, err := repo.ListAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "alpha" || docs[1].ID != "zeta" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestEnsureIndex(t *testing.T) {
	repo, ms := newTestRepo(t)

	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected FT.CREATE")
	}
	if created.Fields[0].VectorDistance != db.DistanceCosine {
		t.Errorf("distance = %s", created.Fields[0].VectorDistance)
	}
	if created.Fields[0].VectorAlgo != db.VectorHNSW {
		t.Errorf("algo = %s", created.Fields[0].VectorAlgo)
	}
	if created.Fields[0].VectorDim != 4 {
		t.Errorf("dim = %d", created.Fields[0].VectorDim)
	}

	// Existing index is left alone.
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return true, nil }
	created = nil
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != nil {
		t.Error("existing index must not be recreated")
	}
}

func TestCount(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchCountFn = func(_ context.Context, index, query string) (int, error) {
		if index != domain.KeyPrefix+"products:idx" || query != "*" {
			t.Errorf("count args = %s %s", index, query)
		}
		return 42, nil
	}

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("count = %d", n)
	}
}
