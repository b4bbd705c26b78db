package retrieval

import (
	"fmt"
	"math"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
)

// Default fusion settings.
const (
	DefaultSemanticWeight      = 0.6
	DefaultKeywordWeight       = 0.4
	DefaultTopK                = 5
	DefaultCandidateMultiplier = 2
	DefaultCandidateCap        = 20
	DefaultKeywordDivisor      = 10.0
)

// Options configures the hybrid retriever. Immutable after construction.
type Options struct {
	// UseHybrid enables sparse fusion; when false only the dense signal is used.
	UseHybrid bool
	// SemanticWeight and KeywordWeight are normalized to sum to 1 at construction.
	SemanticWeight float64
	KeywordWeight  float64
	// DefaultTopK is the result count applied by callers that omit top_k.
	DefaultTopK int
	// CandidateMultiplier and CandidateCap bound how many dense candidates
	// are fetched before fusion: min(topK*multiplier, cap).
	CandidateMultiplier int
	CandidateCap        int
	// KeywordDivisor maps raw BM25 scores onto [0, 1] via min(1, s/divisor).
	KeywordDivisor float64
}

// DefaultOptions returns the default retriever configuration.
func DefaultOptions() Options {
	return Options{
		UseHybrid:           true,
		SemanticWeight:      DefaultSemanticWeight,
		KeywordWeight:       DefaultKeywordWeight,
		DefaultTopK:         DefaultTopK,
		CandidateMultiplier: DefaultCandidateMultiplier,
		CandidateCap:        DefaultCandidateCap,
		KeywordDivisor:      DefaultKeywordDivisor,
	}
}

// normalize validates the options and normalizes the fusion weights so
// they sum to 1.
func (o Options) normalize() (Options, error) {
	if o.SemanticWeight < 0 || o.KeywordWeight < 0 {
		return o, fmt.Errorf("fusion weights must be non-negative: %w", domain.ErrConfiguration)
	}
	sum := o.SemanticWeight + o.KeywordWeight
	if sum == 0 {
		return o, fmt.Errorf("at least one fusion weight must be positive: %w", domain.ErrConfiguration)
	}
	if math.Abs(sum-1.0) > 1e-9 {
		o.SemanticWeight /= sum
		o.KeywordWeight /= sum
	}

	if o.DefaultTopK <= 0 {
		return o, fmt.Errorf("default top_k must be positive, got %d: %w", o.DefaultTopK, domain.ErrConfiguration)
	}
	if o.CandidateMultiplier < 1 {
		return o, fmt.Errorf("candidate multiplier must be >= 1, got %d: %w",
			o.CandidateMultiplier, domain.ErrConfiguration)
	}
	if o.CandidateCap < 1 {
		return o, fmt.Errorf("candidate cap must be >= 1, got %d: %w", o.CandidateCap, domain.ErrConfiguration)
	}
	if o.KeywordDivisor <= 0 {
		return o, fmt.Errorf("keyword normalization divisor must be positive, got %g: %w",
			o.KeywordDivisor, domain.ErrConfiguration)
	}

	return o, nil
}

// candidateK returns how many dense candidates to fetch for a topK query.
func (o Options) candidateK(topK int) int {
	k := topK * o.CandidateMultiplier
	if k > o.CandidateCap {
		k = o.CandidateCap
	}
	return k
}
