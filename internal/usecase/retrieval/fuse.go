package retrieval

import (
	"sort"

	domret "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain/retrieval"
)

// semanticScore maps a cosine distance in [0, 2] onto [0, 1]. The clip
// defends against backends whose distances drift slightly outside the
// nominal range.
func semanticScore(distance float64) float64 {
	s := 1.0 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// keywordScore maps a raw BM25 score onto [0, 1] by dividing by the
// configured divisor and saturating at 1. Raw scores below zero (possible
// for degenerate corpora under the Okapi negative-IDF floor) clamp to 0.
func keywordScore(raw, divisor float64) float64 {
	if raw <= 0 {
		return 0
	}
	s := raw / divisor
	if s > 1 {
		return 1
	}
	return s
}

// fused is one candidate during fusion.
type fused struct {
	id       string
	semantic float64
	keyword  float64
	combined float64
	dense    *domret.StoredDocument // set when the dense stream supplied the doc
}

// fuseHybrid computes the weighted union ranking of the dense candidate
// list and the sparse score map. The returned slice is sorted by combined
// score descending, ties broken by ascending id, and is NOT truncated.
func fuseHybrid(denseHits []domret.StoredDocument, sparseRaw map[string]float64, opts Options) []fused {
	merged := make(map[string]*fused, len(denseHits)+len(sparseRaw))

	for i := range denseHits {
		hit := &denseHits[i]
		merged[hit.Doc.ID] = &fused{
			id:       hit.Doc.ID,
			semantic: semanticScore(hit.Distance),
			dense:    hit,
		}
	}

	for id, raw := range sparseRaw {
		kw := keywordScore(raw, opts.KeywordDivisor)
		if f, ok := merged[id]; ok {
			f.keyword = kw
		} else {
			merged[id] = &fused{id: id, keyword: kw}
		}
	}

	out := make([]fused, 0, len(merged))
	for _, f := range merged {
		f.combined = opts.SemanticWeight*f.semantic + opts.KeywordWeight*f.keyword
		out = append(out, *f)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].combined != out[j].combined {
			return out[i].combined > out[j].combined
		}
		return out[i].id < out[j].id
	})

	return out
}

// rankDense converts a dense candidate list into semantic-only results:
// combined equals the semantic score and the keyword component is absent.
// The backend only promises a stable order for tied distances, so results
// are re-sorted here to keep the combined-desc, id-asc contract.
func rankDense(denseHits []domret.StoredDocument, topK int) []domret.Result {
	results := make([]domret.Result, 0, len(denseHits))
	for i := range denseHits {
		s := semanticScore(denseHits[i].Distance)
		results = append(results, domret.Result{
			ID:       denseHits[i].Doc.ID,
			Content:  denseHits[i].Doc.Content,
			Metadata: denseHits[i].Doc.Metadata,
			Scores: domret.Scores{
				Combined: s,
				Semantic: s,
			},
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Scores.Combined != results[j].Scores.Combined {
			return results[i].Scores.Combined > results[j].Scores.Combined
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
