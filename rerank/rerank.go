package rerank

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// Reranker reorders a candidate list by a secondary relevance signal.
// Implementations add fields to the results, never remove them.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []types.RetrievalResult) ([]types.RetrievalResult, error)
}

// Config holds shared reranker settings.
type Config struct {
	// MaxCandidates caps how many candidates are rescored; the rest keep
	// their retrieval order below the rescored block.
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates"`

	// OriginalWeight and RerankWeight blend the retrieval score with the
	// rerank score.
	OriginalWeight float64 `yaml:"original_weight" json:"original_weight"`
	RerankWeight   float64 `yaml:"rerank_weight" json:"rerank_weight"`
}

// DefaultConfig returns the default reranker settings.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:  50,
		OriginalWeight: 0.3,
		RerankWeight:   0.7,
	}
}

// ScoreFunc rates the relevance of one query-document pair on a 0-1 scale.
// Implementations typically wrap a cross-encoder or LLM scoring prompt.
type ScoreFunc func(ctx context.Context, query, document string) (float64, error)

// LLMReranker rescores candidates through an external scoring function with
// the retrieval score blended in.
type LLMReranker struct {
	score  ScoreFunc
	config Config
	logger *zap.Logger
}

// NewLLMReranker creates a reranker over the given scoring function.
func NewLLMReranker(score ScoreFunc, config Config, logger *zap.Logger) *LLMReranker {
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMReranker{
		score:  score,
		config: config,
		logger: logger.With(zap.String("component", "llm_reranker")),
	}
}

// Rerank implements Reranker. Scoring failures abort the stage; retry
// policy belongs to the caller.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []types.RetrievalResult) ([]types.RetrievalResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	limit := r.config.MaxCandidates
	if limit > len(results) {
		limit = len(results)
	}

	rescored := make([]types.RetrievalResult, len(results))
	copy(rescored, results)

	for i := 0; i < limit; i++ {
		score, err := r.score(ctx, query, rescored[i].Chunk.Content)
		if err != nil {
			if ctx.Err() != nil {
				return nil, types.NewError(types.ErrAborted, "reranking canceled").
					WithStage(types.StageRerank).WithCause(err)
			}
			return nil, types.NewError(types.ErrRerankingFailed, "rerank scoring failed").
				WithStage(types.StageRerank).WithCause(err)
		}
		rescored[i].Score = r.config.OriginalWeight*rescored[i].Score + r.config.RerankWeight*score
	}

	sort.SliceStable(rescored[:limit], func(i, j int) bool {
		return rescored[i].Score > rescored[j].Score
	})
	return rescored, nil
}

// TermOverlapReranker rescores candidates with lexical features only: exact
// term match ratio, term frequency, and query-term proximity. It makes no
// external calls and is the cheap default when no model is configured.
type TermOverlapReranker struct {
	config Config
	logger *zap.Logger
}

// NewTermOverlapReranker creates the lexical reranker.
func NewTermOverlapReranker(config Config, logger *zap.Logger) *TermOverlapReranker {
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermOverlapReranker{
		config: config,
		logger: logger.With(zap.String("component", "term_overlap_reranker")),
	}
}

// Rerank implements Reranker.
func (r *TermOverlapReranker) Rerank(ctx context.Context, query string, results []types.RetrievalResult) ([]types.RetrievalResult, error) {
	if len(results) == 0 {
		return results, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrAborted, "reranking canceled").
			WithStage(types.StageRerank).WithCause(err)
	}

	queryTerms := splitTerms(query)
	rescored := make([]types.RetrievalResult, len(results))
	copy(rescored, results)

	for i := range rescored {
		docTerms := splitTerms(rescored[i].Chunk.Content)
		lexical := 0.4*exactMatchScore(queryTerms, docTerms) +
			0.4*termFrequencyScore(queryTerms, docTerms) +
			0.2*proximityScore(queryTerms, docTerms)
		rescored[i].Score = r.config.OriginalWeight*rescored[i].Score + r.config.RerankWeight*lexical
	}

	sort.SliceStable(rescored, func(i, j int) bool {
		return rescored[i].Score > rescored[j].Score
	})
	return rescored, nil
}

func exactMatchScore(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docSet := make(map[string]struct{}, len(docTerms))
	for _, term := range docTerms {
		docSet[term] = struct{}{}
	}
	matches := 0
	for _, term := range queryTerms {
		if _, ok := docSet[term]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(queryTerms))
}

func termFrequencyScore(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	freqs := make(map[string]int, len(docTerms))
	for _, term := range docTerms {
		freqs[term]++
	}
	total := 0
	for _, term := range queryTerms {
		total += freqs[term]
	}
	return math.Min(float64(total)/float64(len(queryTerms)*3), 1.0)
}

// proximityScore rewards documents where query terms appear close together.
func proximityScore(queryTerms, docTerms []string) float64 {
	if len(queryTerms) <= 1 {
		return 1.0
	}

	querySet := make(map[string]struct{}, len(queryTerms))
	for _, term := range queryTerms {
		querySet[term] = struct{}{}
	}

	minSpan := len(docTerms)
	lastMatch := -1
	for i, term := range docTerms {
		if _, ok := querySet[term]; !ok {
			continue
		}
		if lastMatch >= 0 && i-lastMatch < minSpan {
			minSpan = i - lastMatch
		}
		lastMatch = i
	}
	if lastMatch < 0 || minSpan == len(docTerms) {
		return 0
	}
	return 1.0 / (1.0 + float64(minSpan)/10.0)
}

func splitTerms(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
