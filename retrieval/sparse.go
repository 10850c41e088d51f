package retrieval

import (
	"context"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/fusion"
	"github.com/BaSui01/ragflow/types"
)

// SignalSparse names the BM25 ranking signal.
const SignalSparse = "sparse"

// SparseConfig holds the BM25 parameters.
type SparseConfig struct {
	// K1 controls term-frequency saturation, typically 1.2-2.0.
	K1 float64 `yaml:"k1" json:"k1"`
	// B controls document-length normalization, typically 0.75.
	B float64 `yaml:"b" json:"b"`
}

// DefaultSparseConfig returns the standard BM25 parameters.
func DefaultSparseConfig() SparseConfig {
	return SparseConfig{K1: 1.5, B: 0.75}
}

// SparseRetriever ranks an indexed corpus with BM25. Term statistics are
// precomputed at index time; Retrieve is pure computation and never
// suspends.
type SparseRetriever struct {
	config SparseConfig
	logger *zap.Logger

	mu        sync.RWMutex
	indexed   bool
	chunks    map[string]types.Chunk
	termFreqs map[string]map[string]int // chunk id -> term -> count
	docLens   map[string]int
	avgDocLen float64
	idf       map[string]float64
}

// NewSparseRetriever creates an unindexed BM25 retriever.
func NewSparseRetriever(config SparseConfig, logger *zap.Logger) *SparseRetriever {
	if config.K1 <= 0 {
		config.K1 = DefaultSparseConfig().K1
	}
	if config.B <= 0 {
		config.B = DefaultSparseConfig().B
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SparseRetriever{
		config: config,
		logger: logger.With(zap.String("component", "sparse_retriever")),
	}
}

// Index replaces the corpus and recomputes BM25 statistics.
func (r *SparseRetriever) Index(chunks []types.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chunks = make(map[string]types.Chunk, len(chunks))
	r.termFreqs = make(map[string]map[string]int, len(chunks))
	r.docLens = make(map[string]int, len(chunks))
	termDocCount := make(map[string]int)
	totalLen := 0

	for _, chunk := range chunks {
		terms := tokenize(chunk.Content)
		freqs := make(map[string]int, len(terms))
		for _, term := range terms {
			freqs[term]++
		}

		r.chunks[chunk.ID] = chunk
		r.termFreqs[chunk.ID] = freqs
		r.docLens[chunk.ID] = len(terms)
		totalLen += len(terms)
		for term := range freqs {
			termDocCount[term]++
		}
	}

	if len(chunks) > 0 {
		r.avgDocLen = float64(totalLen) / float64(len(chunks))
	}

	n := float64(len(chunks))
	r.idf = make(map[string]float64, len(termDocCount))
	for term, df := range termDocCount {
		r.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
	r.indexed = true

	r.logger.Info("corpus indexed",
		zap.Int("chunks", len(chunks)),
		zap.Float64("avg_doc_len", r.avgDocLen))
}

// Retrieve scores the corpus against the query and returns a RankingList
// ordered by BM25 score descending.
func (r *SparseRetriever) Retrieve(ctx context.Context, query string, topK int) (fusion.RankingList, error) {
	if strings.TrimSpace(query) == "" {
		return fusion.RankingList{}, types.NewError(types.ErrInvalidQuery, "query is empty").
			WithStage(types.StageRetrieve)
	}
	if err := ctx.Err(); err != nil {
		return fusion.RankingList{}, types.NewError(types.ErrAborted, "sparse retrieval canceled").
			WithStage(types.StageRetrieve).WithCause(err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.indexed {
		return fusion.RankingList{}, types.NewError(types.ErrIndexNotBuilt, "sparse index not built").
			WithStage(types.StageRetrieve)
	}

	queryTerms := tokenize(query)
	scores := make(map[string]float64)

	for id, freqs := range r.termFreqs {
		docLen := float64(r.docLens[id])
		score := 0.0
		for _, term := range queryTerms {
			tf, ok := freqs[term]
			if !ok {
				continue
			}
			idf := r.idf[term]
			numerator := float64(tf) * (r.config.K1 + 1.0)
			denominator := float64(tf) + r.config.K1*(1.0-r.config.B+r.config.B*(docLen/r.avgDocLen))
			score += idf * (numerator / denominator)
		}
		if score > 0 {
			scores[id] = score
		}
	}

	list := fusion.RankByScore(SignalSparse, scores)
	if topK > 0 && len(list.Entries) > topK {
		list.Entries = list.Entries[:topK]
	}
	return list, nil
}

// GetChunks implements ChunkGetter over the indexed corpus.
func (r *SparseRetriever) GetChunks(_ context.Context, ids []string) (map[string]types.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.indexed {
		return nil, types.NewError(types.ErrIndexNotBuilt, "sparse index not built")
	}
	found := make(map[string]types.Chunk, len(ids))
	for _, id := range ids {
		if chunk, ok := r.chunks[id]; ok {
			found[id] = chunk
		}
	}
	return found, nil
}

// tokenize lowercases and splits on whitespace, trimming punctuation from
// token edges.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		term := strings.Trim(field, ".,;:!?\"'()[]{}")
		if term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}
