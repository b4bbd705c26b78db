// Package chi exposes the retrieval core over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain"
	domret "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/domain/retrieval"
	"github.com/abhishek-a-qbit/cuspera-rag-platform/internal/metrics"
	healthuc "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/usecase/health"
	retrievaluc "github.com/abhishek-a-qbit/cuspera-rag-platform/internal/usecase/retrieval"
)

// Machine-readable error codes returned to clients.
const (
	codeBadRequest           = "bad_request"
	codeUnauthorized         = "unauthorized"
	codeValidationFailed     = "validation_failed"
	codeDocumentNotFound     = "document_not_found"
	codeEmbeddingUnavailable = "embedding_unavailable"
	codeEmbeddingProvider    = "embedding_provider_error"
	codeDenseIndex           = "dense_index_error"
	codeSparseIndex          = "sparse_index_error"
	codeInternal             = "internal_error"
)

// maxIndexBatch bounds one POST /v1/documents call.
const maxIndexBatch = 500

// Retriever is the consumer interface over the retrieval usecase.
type Retriever interface {
	IndexDocuments(ctx context.Context, docs []domain.Document) error
	Retrieve(ctx context.Context, query string, topK int) (domret.Response, error)
	Explain(ctx context.Context, query string) (domret.Explanation, error)
	RebuildSparse(ctx context.Context) error
	Options() retrievaluc.Options
	Degraded() bool
}

// DocumentCounter counts stored documents for the stats endpoint.
type DocumentCounter interface {
	Count(ctx context.Context) (int, error)
}

// Server wires the retrieval core into an HTTP API.
type Server struct {
	retriever  Retriever
	counter    DocumentCounter
	health     *healthuc.Service
	collection string
	vectorDim  int
	logger     *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	retriever Retriever,
	counter DocumentCounter,
	health *healthuc.Service,
	collection string,
	vectorDim int,
	logger *zap.Logger,
) *Server {
	return &Server{
		retriever:  retriever,
		counter:    counter,
		health:     health,
		collection: collection,
		vectorDim:  vectorDim,
		logger:     logger,
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.indexDocuments)
		r.Post("/search", s.search)
		r.Get("/search/explain", s.explain)
		r.Post("/sparse/rebuild", s.rebuildSparse)
		r.Get("/stats", s.stats)
	})

	return r
}

type indexRequest struct {
	Documents []domain.Document `json:"documents"`
}

type indexResponse struct {
	Indexed  int  `json:"indexed"`
	Degraded bool `json:"degraded"`
}

// indexDocuments handles POST /v1/documents.
func (s *Server) indexDocuments(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) > maxIndexBatch {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Batch exceeds maximum size")
		return
	}

	if err := s.retriever.IndexDocuments(r.Context(), req.Documents); err != nil {
		s.writeDomainError(w, err, "Failed to index documents")
		return
	}

	writeJSON(w, http.StatusCreated, indexResponse{
		Indexed:  len(req.Documents),
		Degraded: s.retriever.Degraded(),
	})
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// search handles POST /v1/search. A missing top_k falls back to the
// configured default.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.TopK == 0 {
		req.TopK = s.retriever.Options().DefaultTopK
	}

	resp, err := s.retriever.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.writeDomainError(w, err, "Search failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// explain handles GET /v1/search/explain?q=...
func (s *Server) explain(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	expl, err := s.retriever.Explain(r.Context(), query)
	if err != nil {
		s.writeDomainError(w, err, "Explain failed")
		return
	}

	writeJSON(w, http.StatusOK, expl)
}

// rebuildSparse handles POST /v1/sparse/rebuild, the explicit recovery hook.
func (s *Server) rebuildSparse(w http.ResponseWriter, r *http.Request) {
	if err := s.retriever.RebuildSparse(r.Context()); err != nil {
		s.writeDomainError(w, err, "Sparse rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stats handles GET /v1/stats.
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	count, err := s.counter.Count(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "Failed to read collection stats")
		return
	}

	writeJSON(w, http.StatusOK, domret.Stats{
		Collection: s.collection,
		Count:      count,
		VectorDim:  s.vectorDim,
		Degraded:   s.retriever.Degraded(),
	})
}

// healthz handles GET /healthz.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// --- Error mapping ---

type sentinelMapping struct {
	sentinel error
	status   int
	code     string
}

// Ordered most-specific first: ErrRetrieval wraps the others, so it is
// resolved through whichever cause it carries.
var errorMappings = []sentinelMapping{
	{domain.ErrValidation, http.StatusBadRequest, codeValidationFailed},
	{domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound},
	{domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, codeEmbeddingUnavailable},
	{domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingProvider},
	{domain.ErrDenseIndex, http.StatusServiceUnavailable, codeDenseIndex},
	{domain.ErrSparseIndex, http.StatusServiceUnavailable, codeSparseIndex},
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error, msg string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			writeError(w, m.status, m.code, msg+": "+err.Error())
			return
		}
	}

	s.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, msg)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
