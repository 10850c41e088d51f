package retrieval

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/ragflow/fusion"
	"github.com/BaSui01/ragflow/types"
)

// HybridConfig configures the hybrid retriever.
type HybridConfig struct {
	// TopK is the number of candidates returned after fusion.
	TopK int `yaml:"top_k" json:"top_k"`

	// MinScore filters candidates whose blended normalized score falls
	// below it. Zero disables the filter.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// RRFK is the Reciprocal Rank Fusion constant. Zero uses fusion.DefaultK.
	RRFK int `yaml:"rrf_k" json:"rrf_k"`

	// Signal toggles and weights. Weights are applied as score multipliers
	// on each signal's scores before rank computation; RRF itself is
	// weight-agnostic, so the weights influence the blended score used for
	// MinScore filtering and confidence, not the fused rank order.
	UseDense     bool    `yaml:"use_dense" json:"use_dense"`
	UseSparse    bool    `yaml:"use_sparse" json:"use_sparse"`
	DenseWeight  float64 `yaml:"dense_weight" json:"dense_weight"`
	SparseWeight float64 `yaml:"sparse_weight" json:"sparse_weight"`

	// CandidateLimit is the per-signal pool size fetched before fusion.
	CandidateLimit int `yaml:"candidate_limit" json:"candidate_limit"`
}

// DefaultHybridConfig returns the default hybrid retrieval configuration.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		TopK:           5,
		MinScore:       0,
		RRFK:           fusion.DefaultK,
		UseDense:       true,
		UseSparse:      true,
		DenseWeight:    0.5,
		SparseWeight:   0.5,
		CandidateLimit: 50,
	}
}

// HybridRetriever runs dense and sparse retrieval concurrently, fuses their
// rankings with RRF, joins the fused ids back to chunks, and attaches a
// retrieval-signal confidence score to every candidate.
type HybridRetriever struct {
	config HybridConfig
	dense  *DenseRetriever
	sparse *SparseRetriever
	chunks ChunkGetter
	logger *zap.Logger
}

// NewHybridRetriever creates a hybrid retriever. chunks resolves fused ids
// back to content; pass the vector store or the sparse index.
func NewHybridRetriever(config HybridConfig, dense *DenseRetriever, sparse *SparseRetriever, chunks ChunkGetter, logger *zap.Logger) *HybridRetriever {
	if config.TopK <= 0 {
		config.TopK = DefaultHybridConfig().TopK
	}
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = DefaultHybridConfig().CandidateLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridRetriever{
		config: config,
		dense:  dense,
		sparse: sparse,
		chunks: chunks,
		logger: logger.With(zap.String("component", "hybrid_retriever")),
	}
}

// Retrieve implements Retriever.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, filters map[string]string) ([]types.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidQuery, "query is empty").
			WithStage(types.StageRetrieve)
	}

	useDense := r.config.UseDense && r.dense != nil
	useSparse := r.config.UseSparse && r.sparse != nil
	if !useDense && !useSparse {
		return nil, types.NewError(types.ErrConfigError, "no retrieval signals enabled").
			WithStage(types.StageRetrieve)
	}

	var denseList, sparseList fusion.RankingList
	g, gctx := errgroup.WithContext(ctx)
	if useDense {
		g.Go(func() error {
			var err error
			denseList, err = r.dense.Retrieve(gctx, query, r.config.CandidateLimit, filters)
			return err
		})
	}
	if useSparse {
		g.Go(func() error {
			var err error
			sparseList, err = r.sparse.Retrieve(gctx, query, r.config.CandidateLimit)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lists := make([]fusion.RankingList, 0, 2)
	signalScores := make(map[string]map[string]float64, 2)
	weights := map[string]float64{
		SignalDense:  r.config.DenseWeight,
		SignalSparse: r.config.SparseWeight,
	}
	longestList := 0
	for _, list := range []fusion.RankingList{denseList, sparseList} {
		if len(list.Entries) == 0 {
			continue
		}
		lists = append(lists, list)
		if len(list.Entries) > longestList {
			longestList = len(list.Entries)
		}

		raw := make(map[string]float64, len(list.Entries))
		for _, entry := range list.Entries {
			raw[entry.ID] = entry.Score
		}
		signalScores[list.Signal] = fusion.ApplyWeight(fusion.NormalizeScores(raw), weights[list.Signal])
	}
	if len(lists) == 0 {
		return []types.RetrievalResult{}, nil
	}

	fused := fusion.Fuse(lists, r.config.RRFK)
	if len(fused) > r.config.TopK {
		fused = fused[:r.config.TopK]
	}

	ids := make([]string, len(fused))
	for i, item := range fused {
		ids[i] = item.ID
	}
	chunks, err := r.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "chunk lookup failed").
			WithStage(types.StageRetrieve).WithCause(err)
	}

	totalSignals := len(lists)
	results := make([]types.RetrievalResult, 0, len(fused))
	for _, item := range fused {
		chunk, ok := chunks[item.ID]
		if !ok {
			r.logger.Warn("fused id missing from chunk source", zap.String("chunk_id", item.ID))
			continue
		}
		if r.config.MinScore > 0 && blendedScore(item, signalScores) < r.config.MinScore {
			continue
		}
		results = append(results, types.RetrievalResult{
			ID:         item.ID,
			Chunk:      chunk,
			Score:      item.Score,
			Confidence: computeConfidence(item, signalScores, totalSignals, longestList),
		})
	}

	r.logger.Debug("hybrid retrieval complete",
		zap.Int("dense_candidates", len(denseList.Entries)),
		zap.Int("sparse_candidates", len(sparseList.Entries)),
		zap.Int("fused", len(results)))

	return results, nil
}

// blendedScore is the weighted sum of a candidate's normalized per-signal
// scores, comparable against MinScore on a 0-1 scale.
func blendedScore(item fusion.FusedItem, signalScores map[string]map[string]float64) float64 {
	blend := 0.0
	for signal := range item.Ranks {
		if scores, ok := signalScores[signal]; ok {
			blend += scores[item.ID]
		}
	}
	return blend
}
