package health

import "context"

// DBPinger checks dense-store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// DegradedChecker reports whether hybrid retrieval is degraded to dense-only.
type DegradedChecker interface {
	Degraded() bool
}
