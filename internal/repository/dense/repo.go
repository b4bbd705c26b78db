// Package dense persists document vectors in a Redis FT index and answers
// cosine-nearest-neighbor queries over them.
package dense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/db"
	dbredis "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/db/redis"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain/retrieval"
)

const (
	fieldContent = "content"
	fieldMeta    = "meta"
	fieldVector  = "vector"
)

// store is the consumer interface for the dense index (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	DelMulti(ctx context.Context, keys []string) error
	RenameMulti(ctx context.Context, pairs []db.RenamePair) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Repo is the dense index repository for one collection.
type Repo struct {
	store      store
	collection string
	dim        int
}

// New creates a dense repository over the given collection name.
func New(s store, collection string, vectorDim int) *Repo {
	return &Repo{store: s, collection: collection, dim: vectorDim}
}

func (r *Repo) keyPrefix() string {
	return domain.KeyPrefix + r.collection + ":"
}

func (r *Repo) docKey(id string) string {
	return r.keyPrefix() + id
}

func (r *Repo) stagingKey(id string) string {
	return domain.KeyPrefix + "staging:" + r.collection + ":" + id
}

func (r *Repo) indexName() string {
	return domain.KeyPrefix + r.collection + ":idx"
}

// EnsureIndex creates the FT index (HNSW, cosine) if it does not exist.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("index info %s: %w: %w", r.indexName(), err, domain.ErrDenseIndex)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.keyPrefix()},
		Fields: []db.IndexField{
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           32,
				VectorEFConstruct: 400,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w: %w", r.indexName(), err, domain.ErrDenseIndex)
	}
	return nil
}

// Add appends a batch of documents with their vectors. The batch is first
// written to staging keys outside the index prefix, then published with a
// pipelined RENAME; a failure before publication leaves the index as it
// was. Ids duplicated across batches overwrite the earlier document
// (last write wins).
func (r *Repo) Add(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d documents: %w", len(vectors), len(docs), domain.ErrDenseIndex)
	}

	items := make([]db.HashSetItem, len(docs))
	pairs := make([]db.RenamePair, len(docs))
	stagingKeys := make([]string, len(docs))

	for i := range docs {
		fields := map[string]string{
			fieldContent: docs[i].Content,
			fieldVector:  dbredis.VectorToBytes(vectors[i]),
		}
		if len(docs[i].Metadata) > 0 {
			meta, err := json.Marshal(docs[i].Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata for %q: %w: %w", docs[i].ID, err, domain.ErrValidation)
			}
			fields[fieldMeta] = string(meta)
		}

		stagingKeys[i] = r.stagingKey(docs[i].ID)
		items[i] = db.HashSetItem{Key: stagingKeys[i], Fields: fields}
		pairs[i] = db.RenamePair{From: stagingKeys[i], To: r.docKey(docs[i].ID)}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		_ = r.store.DelMulti(ctx, stagingKeys)
		return fmt.Errorf("stage batch: %w: %w", err, domain.ErrDenseIndex)
	}

	if err := r.store.RenameMulti(ctx, pairs); err != nil {
		_ = r.store.DelMulti(ctx, stagingKeys)
		return fmt.Errorf("publish batch: %w: %w", err, domain.ErrDenseIndex)
	}

	return nil
}

// Query returns the n nearest documents by cosine distance, ranked
// ascending. An empty collection yields an empty result.
func (r *Repo) Query(ctx context.Context, vector []float32, n int) ([]retrieval.StoredDocument, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            n,
		ReturnFields: []string{fieldContent, fieldMeta},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w: %w", r.collection, err, domain.ErrDenseIndex)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	out := make([]retrieval.StoredDocument, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		doc, err := r.parseEntryFields(strings.TrimPrefix(entry.Key, r.keyPrefix()), entry.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, retrieval.StoredDocument{Doc: doc, Distance: entry.Distance})
	}

	return out, nil
}

// Get returns a stored document by id.
func (r *Repo) Get(ctx context.Context, id string) (domain.Document, error) {
	fields, err := r.store.HGetAll(ctx, r.docKey(id))
	if err != nil {
		return domain.Document{}, fmt.Errorf("hgetall %s: %w: %w", id, err, domain.ErrDenseIndex)
	}
	if len(fields) == 0 {
		return domain.Document{}, fmt.Errorf("%q: %w", id, domain.ErrDocumentNotFound)
	}
	return r.parseEntryFields(id, fields)
}

// GetMulti returns stored documents for the given ids in one round-trip.
// Missing ids are skipped, not errors.
func (r *Repo) GetMulti(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi: %w: %w", err, domain.ErrDenseIndex)
	}

	docs := make([]domain.Document, 0, len(ids))
	for i, fields := range hashes {
		if len(fields) == 0 {
			continue
		}
		doc, err := r.parseEntryFields(ids[i], fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of indexed documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), "*")
	if err != nil {
		return 0, fmt.Errorf("search count %s: %w: %w", r.collection, err, domain.ErrDenseIndex)
	}
	return n, nil
}

// ListAll loads every stored document, ordered by id. Used to rebuild the
// sparse index from persistent state.
func (r *Repo) ListAll(ctx context.Context) ([]domain.Document, error) {
	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w: %w", r.collection, err, domain.ErrDenseIndex)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load documents %s: %w: %w", r.collection, err, domain.ErrDenseIndex)
	}

	docs := make([]domain.Document, 0, len(keys))
	for i, key := range keys {
		if len(hashes[i]) == 0 {
			continue // expired or deleted between SCAN and HGETALL
		}
		doc, err := r.parseEntryFields(strings.TrimPrefix(key, r.keyPrefix()), hashes[i])
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Drop removes the index and all stored documents.
func (r *Repo) Drop(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w: %w", r.indexName(), err, domain.ErrDenseIndex)
	}

	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return fmt.Errorf("scan %s: %w: %w", r.collection, err, domain.ErrDenseIndex)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("delete documents %s: %w: %w", r.collection, err, domain.ErrDenseIndex)
	}
	return nil
}

func (r *Repo) parseEntryFields(id string, fields map[string]string) (domain.Document, error) {
	doc := domain.Document{
		ID:      id,
		Content: fields[fieldContent],
	}

	if raw, ok := fields[fieldMeta]; ok && raw != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return domain.Document{}, fmt.Errorf("corrupt metadata for %q: %w: %w", id, err, domain.ErrDenseIndex)
		}
		doc.Metadata = meta
	}

	return doc, nil
}
