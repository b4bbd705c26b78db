// Package bm25 implements an in-process Okapi BM25 index over whitespace
// tokens. An Index is immutable once built; corpus changes require a full
// rebuild because document frequency, document length, and average length
// statistics are global.
package bm25

import (
	"math"
	"strings"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
)

// Okapi BM25 parameters (the rank_bm25 BM25Okapi defaults).
const (
	k1      = 1.5
	b       = 0.75
	epsilon = 0.25
)

// Tokenize lowercases s and splits it on Unicode whitespace. No stemming,
// no stopword removal, no punctuation stripping.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// Index holds the BM25 statistics for one corpus snapshot.
type Index struct {
	ids      []string
	termFreq []map[string]int
	docLen   []int
	avgLen   float64
	idf      map[string]float64
}

// Build computes BM25 statistics from scratch for the given documents.
// Documents with zero tokens are legal and always score zero.
func Build(docs []domain.Document) *Index {
	idx := &Index{
		ids:      make([]string, len(docs)),
		termFreq: make([]map[string]int, len(docs)),
		docLen:   make([]int, len(docs)),
		idf:      make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0

	for i := range docs {
		tokens := Tokenize(docs[i].Content)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}

		idx.ids[i] = docs[i].ID
		idx.termFreq[i] = tf
		idx.docLen[i] = len(tokens)
		totalLen += len(tokens)

		for t := range tf {
			docFreq[t]++
		}
	}

	if len(docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(docs))
	}

	idx.computeIDF(docFreq, len(docs))
	return idx
}

// computeIDF fills the IDF table. Terms occurring in more than half the
// corpus get a negative raw IDF; those are floored to epsilon times the
// average IDF, following the Okapi convention rank_bm25 uses.
func (x *Index) computeIDF(docFreq map[string]int, n int) {
	if n == 0 || len(docFreq) == 0 {
		return
	}

	var idfSum float64
	var negative []string

	for term, df := range docFreq {
		idf := math.Log((float64(n) - float64(df) + 0.5) / (float64(df) + 0.5))
		x.idf[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}

	avgIDF := idfSum / float64(len(docFreq))
	floor := epsilon * avgIDF
	for _, term := range negative {
		x.idf[term] = floor
	}
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	return len(x.ids)
}

// Scores computes the raw BM25 score of every indexed document for the
// query. Documents with no token overlap score 0. The query is tokenized
// with the same rule as documents.
func (x *Index) Scores(query string) map[string]float64 {
	scores := make(map[string]float64, len(x.ids))
	for _, id := range x.ids {
		scores[id] = 0
	}

	tokens := Tokenize(query)
	if len(tokens) == 0 || x.avgLen == 0 {
		return scores
	}

	for i := range x.ids {
		var score float64
		dl := float64(x.docLen[i])
		for _, t := range tokens {
			tf := float64(x.termFreq[i][t])
			if tf == 0 {
				continue
			}
			score += x.idf[t] * tf * (k1 + 1) / (tf + k1*(1-b+b*dl/x.avgLen))
		}
		scores[x.ids[i]] = score
	}

	return scores
}
