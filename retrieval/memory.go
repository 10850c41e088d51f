package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// MemoryVectorStore is an in-process VectorStore for tests and small
// corpora. Vectors are scored by cosine similarity.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	chunks  map[string]types.Chunk
	vectors map[string][]float64
	logger  *zap.Logger
}

// NewMemoryVectorStore creates an empty in-memory store.
func NewMemoryVectorStore(logger *zap.Logger) *MemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryVectorStore{
		chunks:  make(map[string]types.Chunk),
		vectors: make(map[string][]float64),
		logger:  logger.With(zap.String("component", "memory_vector_store")),
	}
}

// Add stores a chunk with its embedding vector, replacing any previous
// entry with the same id.
func (s *MemoryVectorStore) Add(chunk types.Chunk, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("chunk %s has no embedding", chunk.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[chunk.ID] = chunk
	s.vectors[chunk.ID] = vector
	return nil
}

// Search returns the topK most similar chunks, optionally constrained by
// exact-match metadata filters.
func (s *MemoryVectorStore) Search(ctx context.Context, queryVector []float64, topK int, filters map[string]string) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]VectorHit, 0, len(s.vectors))
	for id, vector := range s.vectors {
		if len(vector) != len(queryVector) {
			return nil, types.NewError(types.ErrDimensionMismatch,
				fmt.Sprintf("stored vector %s has dimension %d, query has %d", id, len(vector), len(queryVector)))
		}
		if !matchesFilters(s.chunks[id], filters) {
			continue
		}
		hits = append(hits, VectorHit{ChunkID: id, Score: cosineSimilarity(queryVector, vector)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// GetChunks implements ChunkGetter.
func (s *MemoryVectorStore) GetChunks(_ context.Context, ids []string) (map[string]types.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]types.Chunk, len(ids))
	for _, id := range ids {
		if chunk, ok := s.chunks[id]; ok {
			found[id] = chunk
		}
	}
	return found, nil
}

// Count returns the number of stored chunks.
func (s *MemoryVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func matchesFilters(chunk types.Chunk, filters map[string]string) bool {
	for key, want := range filters {
		got, ok := chunk.Metadata[key]
		if !ok || fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
