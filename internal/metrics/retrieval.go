package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval Prometheus metrics.
var (
	RetrievalSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cuspera",
			Name:      "retrieval_searches_total",
			Help:      "Total number of retrieve calls by search mode",
		},
		[]string{"mode"}, // "hybrid" / "semantic"
	)

	RetrievalFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cuspera",
			Name:      "retrieval_sparse_fallbacks_total",
			Help:      "Hybrid queries served dense-only because the sparse index failed",
		},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cuspera",
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieve call duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	RetrievalCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cuspera",
			Name:      "retrieval_fusion_candidates",
			Help:      "Size of the candidate union considered for fusion",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250},
		},
	)

	IndexedDocumentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cuspera",
			Name:      "indexed_documents_total",
			Help:      "Total documents accepted by index batches",
		},
	)

	SparseRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cuspera",
			Name:      "sparse_rebuilds_total",
			Help:      "Sparse index rebuilds by outcome",
		},
		[]string{"status"}, // "success" / "error"
	)
)

var retMetricsRegistered bool

// RegisterRetrievalMetrics registers Prometheus retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalSearchesTotal)
	prometheus.MustRegister(RetrievalFallbacksTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(RetrievalCandidates)
	prometheus.MustRegister(IndexedDocumentsTotal)
	prometheus.MustRegister(SparseRebuildsTotal)
	retMetricsRegistered = true
}
