// Package retrieval defines the result model of the hybrid retrieval core.
package retrieval

import (
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
)

// Mode identifies which search path produced a response.
type Mode string

const (
	// ModeHybrid means both the dense and the sparse signal contributed.
	ModeHybrid Mode = "hybrid"
	// ModeSemantic means only the dense signal contributed, either because
	// hybrid search is disabled or because the sparse index was unavailable.
	ModeSemantic Mode = "semantic"
)

// Scores is the per-document score triplet. Combined and Semantic are
// always in [0, 1]. Keyword is nil in semantic mode.
type Scores struct {
	Combined float64  `json:"combined"`
	Semantic float64  `json:"semantic"`
	Keyword  *float64 `json:"keyword"`
}

// Result is a single retrieved document with attribution scores.
type Result struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Scores   Scores         `json:"scores"`
}

// Response is an ordered retrieval result. Results are sorted by strictly
// non-increasing combined score, ties broken by ascending id.
type Response struct {
	Query   string   `json:"query"`
	Mode    Mode     `json:"search_mode"`
	Results []Result `json:"results"`
}

// Candidate is an unmerged ranked entry from one of the two signals,
// exposed by Explain for diagnostics.
type Candidate struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Explanation is the diagnostic breakdown of a query: the unmerged dense
// and sparse ranked lists plus the effective fusion weights.
type Explanation struct {
	Query          string      `json:"query"`
	Dense          []Candidate `json:"semantic_results"`
	Sparse         []Candidate `json:"keyword_results"`
	SemanticWeight float64     `json:"semantic_weight"`
	KeywordWeight  float64     `json:"keyword_weight"`
}

// Stats describes the state of the indexed collection.
type Stats struct {
	Collection string `json:"collection_name"`
	Count      int    `json:"count"`
	VectorDim  int    `json:"vector_dimensions"`
	Degraded   bool   `json:"degraded"`
}

// StoredDocument is a document as persisted in the dense store, paired
// with its raw cosine distance when returned from a KNN query.
type StoredDocument struct {
	Doc      domain.Document
	Distance float64
}
