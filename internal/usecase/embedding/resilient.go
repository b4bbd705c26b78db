// Package embedding decorates the embedding provider with retry and
// circuit-breaker policies so transient provider failures do not take
// down indexing or retrieval.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
)

// Config holds retry and circuit-breaker settings.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

// DefaultConfig returns the default resilience settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         3,
		InitialBackoff:      100 * time.Millisecond,
		MaxBackoff:          2 * time.Second,
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  30 * time.Second,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	return c
}

// Resilient wraps an embedder with retry and a shared circuit breaker.
type Resilient struct {
	inner   domain.Embedder
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

// NewResilient creates the resilience decorator.
func NewResilient(inner domain.Embedder, cfg Config, logger *zap.Logger) *Resilient {
	cfg = cfg.normalize()

	settings := gobreaker.Settings{
		Name:    "embedding",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Embedding circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Resilient{
		inner:   inner,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		logger:  logger,
	}
}

// Embed runs the inner Embed under the retry and breaker policies.
func (r *Resilient) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	out, err := r.execute(ctx, func(ctx context.Context) (any, error) {
		return r.inner.Embed(ctx, text)
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return out.(domain.EmbeddingResult), nil
}

// BatchEmbed runs the inner batch call under the same policies and breaker.
func (r *Resilient) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out, err := r.execute(ctx, func(ctx context.Context) (any, error) {
		return domain.BatchEmbed(ctx, r.inner, texts)
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return out.(domain.BatchEmbeddingResult), nil
}

func (r *Resilient) execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	out, err := r.breaker.Execute(func() (any, error) {
		return r.executeWithRetry(ctx, fn)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, domain.ErrEmbeddingProvider)
		}
		return nil, err
	}
	return out, nil
}

func (r *Resilient) executeWithRetry(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	backoff := r.cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("embed aborted: %w", err)
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !retryable(err) || attempt == r.cfg.MaxAttempts {
			return nil, err
		}

		r.logger.Debug("Retrying embedding call",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("embed aborted: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	return nil, lastErr
}

// retryable reports whether a failed call is worth repeating. Context
// cancellation is the caller's decision, not a transient fault.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
