package cuspera

import "context"

// Document is the unit of indexing. Metadata is restricted to JSON
// primitives and forwarded verbatim on retrieval.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// SearchMode identifies which search path produced a response.
type SearchMode string

// Search mode constants.
const (
	ModeHybrid   SearchMode = "hybrid"
	ModeSemantic SearchMode = "semantic"
)

// Scores is the per-document score triplet. Keyword is nil when the
// response was served in semantic mode.
type Scores struct {
	Combined float64
	Semantic float64
	Keyword  *float64
}

// Result is a single retrieved document with attribution scores.
type Result struct {
	ID       string
	Content  string
	Metadata map[string]any
	Scores   Scores
}

// Response is an ordered retrieval result.
type Response struct {
	Query   string
	Mode    SearchMode
	Results []Result
}

// Candidate is an unmerged ranked entry from one signal.
type Candidate struct {
	ID    string
	Score float64
}

// Explanation is the diagnostic breakdown returned by Explain.
type Explanation struct {
	Query          string
	Semantic       []Candidate
	Keyword        []Candidate
	SemanticWeight float64
	KeywordWeight  float64
}

// Stats describes the indexed collection.
type Stats struct {
	Collection string
	Count      int
	VectorDim  int
	Degraded   bool
}

// Embedder converts text to vector embeddings. Implementations must be
// deterministic for a fixed configuration and return vectors of one
// fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
// Optional — when the provided Embedder also implements BatchEmbedder,
// index batches use it for better throughput.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}
