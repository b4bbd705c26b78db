package domain

import "errors"

var (
	// ErrValidation signals caller-supplied input violating a stated precondition.
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration signals a construction-time misconfiguration.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrEmbeddingUnavailable signals that the embedding provider circuit is open.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrDenseIndex signals a dense index failure.
	ErrDenseIndex = errors.New("dense index error")
	// ErrSparseIndex signals a sparse index failure.
	ErrSparseIndex = errors.New("sparse index error")
	// ErrRetrieval wraps any failure surfaced from Retrieve.
	ErrRetrieval = errors.New("retrieval failed")
)
