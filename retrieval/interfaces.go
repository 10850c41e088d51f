package retrieval

import (
	"context"

	"github.com/BaSui01/ragflow/types"
)

// EmbeddingFunc converts text into an embedding vector. Implementations
// typically wrap an embedding model API. Expected error codes:
// MODEL_NOT_FOUND, RATE_LIMIT, EMPTY_INPUT.
type EmbeddingFunc func(ctx context.Context, text string) ([]float64, error)

// VectorHit is one nearest-neighbor match from a vector store.
type VectorHit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// VectorStore is the opaque nearest-neighbor search boundary. Expected
// error codes: DIMENSION_MISMATCH, STORE_UNAVAILABLE, INVALID_FILTER.
type VectorStore interface {
	Search(ctx context.Context, queryVector []float64, topK int, filters map[string]string) ([]VectorHit, error)
}

// ChunkGetter joins chunk ids back to their content. Vector stores and the
// sparse index both implement it.
type ChunkGetter interface {
	GetChunks(ctx context.Context, ids []string) (map[string]types.Chunk, error)
}

// Retriever produces the final candidate set for a query. HybridRetriever
// is the primary implementation.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filters map[string]string) ([]types.RetrievalResult, error)
}
