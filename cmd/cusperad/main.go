package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/config"
	dbRedis "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/db/redis"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/loader"
	logpkg "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/logger"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/metrics"
	densrepo "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/repository/dense"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/repository/embcache"
	chiTransport "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/transport/chi"
	openaiEmb "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/transport/openai"
	embeddinguc "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/usecase/embedding"
	healthuc "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/usecase/health"
	retrievaluc "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/usecase/retrieval"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/version"
)

func main() {
	loadDataset := flag.Bool("load", false, "bulk-index the configured dataset directory at startup")
	flag.Parse()

	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting cuspera retrieval server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("collection", cfg.Retrieval.Collection),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	docEmbedder := buildEmbedder(cfg, cfg.Embedding.DocumentInstruction, store, logger)
	queryEmbedder := buildEmbedder(cfg, cfg.Embedding.QueryInstruction, store, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	dense := densrepo.New(store, cfg.Retrieval.Collection, cfg.Embedding.Dimensions)
	if err := dense.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure dense index", zap.Error(err))
	}

	retriever, err := newRetriever(cfg, docEmbedder, queryEmbedder, dense, logger)
	if err != nil {
		logger.Fatal("Failed to create retriever", zap.Error(err))
	}

	if *loadDataset {
		bulkIndex(ctx, cfg.Dataset.Path, retriever, logger)
	} else if err := retriever.RebuildSparse(ctx); err != nil {
		// A fresh store has nothing to rebuild from; hybrid service starts
		// once documents arrive.
		logger.Warn("Startup sparse rebuild failed", zap.Error(err))
	}

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(queryEmbedder), retriever)

	server := chiTransport.NewServer(
		retriever, dense, healthSvc,
		cfg.Retrieval.Collection, cfg.Embedding.Dimensions, logger,
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func newRetriever(
	cfg config.Config,
	docEmbedder, queryEmbedder domain.Embedder,
	dense *densrepo.Repo,
	logger *zap.Logger,
) (*retrievaluc.Service, error) {
	opts := retrievaluc.Options{
		UseHybrid:           *cfg.Retrieval.UseHybrid,
		SemanticWeight:      *cfg.Retrieval.SemanticWeight,
		KeywordWeight:       *cfg.Retrieval.KeywordWeight,
		DefaultTopK:         cfg.Retrieval.DefaultTopK,
		CandidateMultiplier: cfg.Retrieval.CandidateMultiplier,
		CandidateCap:        cfg.Retrieval.CandidateCap,
		KeywordDivisor:      cfg.Retrieval.KeywordDivisor,
	}
	return retrievaluc.New(docEmbedder, queryEmbedder, dense, nil, opts, logger)
}

// bulkIndex loads the dataset directory and indexes it in one batch.
func bulkIndex(ctx context.Context, path string, retriever *retrievaluc.Service, logger *zap.Logger) {
	if path == "" {
		logger.Warn("--load given but dataset.path is not configured")
		return
	}

	docs, err := loader.LoadDir(path)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}
	if len(docs) == 0 {
		logger.Warn("Dataset directory contains no documents", zap.String("path", path))
		return
	}

	if err := retriever.IndexDocuments(ctx, docs); err != nil {
		logger.Fatal("Failed to index dataset", zap.Error(err))
	}
	logger.Info("Indexed dataset", zap.String("path", path), zap.Int("documents", len(docs)))
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction -> Resilient.
func buildEmbedder(
	cfg config.Config,
	instruction string,
	store *dbRedis.Store,
	logger *zap.Logger,
) domain.Embedder {
	var emb domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	if cfg.Embedding.CacheEnabled {
		emb = embcache.New(emb, store, metrics.EmbeddingCacheTotal, logger)
	}

	if instruction != "" {
		emb = domain.NewInstructionEmbedder(emb, instruction)
	}

	resilience := embeddinguc.Config{
		MaxAttempts:         cfg.Resilience.MaxAttempts,
		InitialBackoff:      time.Duration(cfg.Resilience.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:          time.Duration(cfg.Resilience.MaxBackoffMs) * time.Millisecond,
		BreakerMinRequests:  cfg.Resilience.BreakerMinRequests,
		BreakerFailureRatio: cfg.Resilience.BreakerFailureRatio,
		BreakerOpenTimeout:  time.Duration(cfg.Resilience.BreakerOpenTimeoutSec) * time.Second,
	}

	return embeddinguc.NewResilient(emb, resilience, logger)
}
