package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/cache"
	"github.com/BaSui01/ragflow/fusion"
	"github.com/BaSui01/ragflow/types"
)

// SignalDense names the vector-similarity ranking signal.
const SignalDense = "dense"

// DenseRetriever embeds the query and searches a vector store for the
// nearest chunks. Query embeddings are memoized through a cache provider so
// repeated or enhanced variants of a query do not pay for re-embedding.
type DenseRetriever struct {
	embed      EmbeddingFunc
	store      VectorStore
	embedCache cache.Provider[[]float64]
	logger     *zap.Logger
}

// NewDenseRetriever creates a dense retriever. A nil embedCache disables
// embedding memoization via the no-op provider.
func NewDenseRetriever(embed EmbeddingFunc, store VectorStore, embedCache cache.Provider[[]float64], logger *zap.Logger) *DenseRetriever {
	if embedCache == nil {
		embedCache = cache.NewNoop[[]float64]()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DenseRetriever{
		embed:      embed,
		store:      store,
		embedCache: embedCache,
		logger:     logger.With(zap.String("component", "dense_retriever")),
	}
}

// Retrieve embeds the query and returns a RankingList ordered by vector
// similarity descending.
func (r *DenseRetriever) Retrieve(ctx context.Context, query string, topK int, filters map[string]string) (fusion.RankingList, error) {
	if strings.TrimSpace(query) == "" {
		return fusion.RankingList{}, types.NewError(types.ErrInvalidQuery, "query is empty").
			WithStage(types.StageRetrieve)
	}

	vector, err := r.embedQuery(ctx, query)
	if err != nil {
		return fusion.RankingList{}, err
	}

	hits, err := r.store.Search(ctx, vector, topK, filters)
	if err != nil {
		if ctx.Err() != nil {
			return fusion.RankingList{}, types.NewError(types.ErrAborted, "vector search canceled").
				WithStage(types.StageRetrieve).WithCause(err)
		}
		return fusion.RankingList{}, types.NewError(types.ErrStoreError, "vector search failed").
			WithStage(types.StageRetrieve).WithCause(err)
	}

	entries := make([]fusion.RankedEntry, len(hits))
	for i, hit := range hits {
		entries[i] = fusion.RankedEntry{ID: hit.ChunkID, Rank: i + 1, Score: hit.Score}
	}
	return fusion.RankingList{Signal: SignalDense, Entries: entries}, nil
}

func (r *DenseRetriever) embedQuery(ctx context.Context, query string) ([]float64, error) {
	key := embeddingCacheKey(query)
	if vector, ok := r.embedCache.Get(ctx, key); ok {
		return vector, nil
	}

	vector, err := r.embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrAborted, "embedding canceled").
				WithStage(types.StageRetrieve).WithCause(err)
		}
		return nil, types.NewError(types.ErrEmbeddingFailed, "query embedding failed").
			WithStage(types.StageRetrieve).WithCause(err)
	}

	r.embedCache.Set(ctx, key, vector, 0)
	return vector, nil
}

func embeddingCacheKey(query string) string {
	hash := sha256.Sum256([]byte(query))
	return "emb:" + hex.EncodeToString(hash[:16])
}
