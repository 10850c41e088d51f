// Package engine orchestrates the retrieval pipeline: optional query
// enhancement, hybrid retrieval, optional reranking and verification, and
// context assembly, with whole-search result caching in front.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/assemble"
	"github.com/BaSui01/ragflow/cache"
	"github.com/BaSui01/ragflow/enhance"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/rerank"
	"github.com/BaSui01/ragflow/retrieval"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/verify"
)

// Engine runs searches through the configured pipeline stages.
type Engine struct {
	config    Config
	enhancer  enhance.QueryEnhancer
	retriever retrieval.Retriever
	reranker  rerank.Reranker
	verifier  *verify.Verifier
	assembler *assemble.Assembler

	resultCache cache.Provider[types.RAGResult]
	collector   *metrics.Collector
	logger      *zap.Logger
}

// NewEngine creates an engine around the retriever. Optional stages are
// attached with the WithX methods; a stage that is toggled on in the
// config but has no component attached fails at Search time with
// CONFIG_ERROR.
func NewEngine(config Config, retriever retrieval.Retriever, logger *zap.Logger) (*Engine, error) {
	if retriever == nil {
		return nil, types.NewError(types.ErrConfigError, "retriever is required")
	}
	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:    config,
		retriever: retriever,
		assembler: assemble.NewAssembler(config.Assemble, logger),
		logger:    logger.With(zap.String("component", "engine")),
	}
	if config.CacheResults {
		e.resultCache = cache.NewLRU[types.RAGResult](config.Cache, logger)
	} else {
		e.resultCache = cache.NewNoop[types.RAGResult]()
	}
	return e, nil
}

func applyDefaults(config *Config) {
	defaults := DefaultConfig()
	if config.Retrieval.TopK <= 0 {
		config.Retrieval.TopK = defaults.Retrieval.TopK
	}
	if config.Assemble.MaxTokens <= 0 {
		config.Assemble.MaxTokens = defaults.Assemble.MaxTokens
	}
	if config.Stages.Verify {
		if config.Verify.SkipThreshold == 0 {
			config.Verify.SkipThreshold = defaults.Verify.SkipThreshold
		}
		if config.Verify.FilterThreshold == 0 {
			config.Verify.FilterThreshold = defaults.Verify.FilterThreshold
		}
	}
	if config.Cache.MaxSize <= 0 {
		config.Cache.MaxSize = defaults.Cache.MaxSize
	}
}

// WithEnhancer attaches the query enhancement stage.
func (e *Engine) WithEnhancer(enhancer enhance.QueryEnhancer) *Engine {
	e.enhancer = enhancer
	return e
}

// WithReranker attaches the reranking stage.
func (e *Engine) WithReranker(reranker rerank.Reranker) *Engine {
	e.reranker = reranker
	return e
}

// WithVerifier attaches the verification stage.
func (e *Engine) WithVerifier(verifier *verify.Verifier) *Engine {
	e.verifier = verifier
	return e
}

// WithAssembler replaces the default assembler, e.g. to use an exact
// token counter.
func (e *Engine) WithAssembler(assembler *assemble.Assembler) *Engine {
	if assembler != nil {
		e.assembler = assembler
	}
	return e
}

// WithResultCache replaces the result cache, e.g. with the Redis
// provider for cross-process sharing.
func (e *Engine) WithResultCache(provider cache.Provider[types.RAGResult]) *Engine {
	if provider != nil {
		e.resultCache = provider
	}
	return e
}

// WithMetrics attaches a metrics collector.
func (e *Engine) WithMetrics(collector *metrics.Collector) *Engine {
	e.collector = collector
	return e
}

// SearchOptions carry per-call overrides.
type SearchOptions struct {
	// Filters restrict dense retrieval to chunks whose metadata matches
	// every entry.
	Filters map[string]string

	// SkipCache bypasses the result cache for this call. The fresh
	// result is still stored.
	SkipCache bool
}

// Search runs the full pipeline for the query.
func (e *Engine) Search(ctx context.Context, query string) (*types.RAGResult, error) {
	return e.SearchWithOptions(ctx, query, SearchOptions{})
}

// SearchWithOptions runs the full pipeline with per-call options.
func (e *Engine) SearchWithOptions(ctx context.Context, query string, opts SearchOptions) (*types.RAGResult, error) {
	started := time.Now()
	result, err := e.search(ctx, query, opts)
	if err != nil {
		e.recordSearch("error")
		return nil, err
	}
	e.recordSearch("ok")
	e.logger.Info("search complete",
		zap.String("query", query),
		zap.Bool("from_cache", result.FromCache),
		zap.Int("assembled", result.Counts.Assembled),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (e *Engine) search(ctx context.Context, query string, opts SearchOptions) (*types.RAGResult, error) {
	timings := make(map[types.Stage]time.Duration)

	effective, err := e.enhanceStage(ctx, query, timings)
	if err != nil {
		return nil, err
	}

	key := cacheKey(effective, e.config.Retrieval.TopK, opts.Filters, e.config.Stages)
	if !opts.SkipCache {
		if cached, ok := e.resultCache.Get(ctx, key); ok {
			e.recordCache(true)
			cached.FromCache = true
			return &cached, nil
		}
		e.recordCache(false)
	}

	results, err := e.runRetrieve(ctx, effective, opts.Filters, timings)
	if err != nil {
		return nil, err
	}
	counts := types.StageCounts{Retrieved: len(results)}
	e.recordCount(types.StageRetrieve, len(results))

	if e.config.Stages.Rerank && len(results) > 0 {
		results, err = e.runRerank(ctx, effective, results, timings)
		if err != nil {
			return nil, err
		}
		counts.Reranked = len(results)
		e.recordCount(types.StageRerank, len(results))
	}

	if e.config.Stages.Verify && len(results) > 0 {
		results, err = e.runVerify(ctx, effective, results, timings)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if r.Verification == nil {
				continue
			}
			if r.Verification.Verified {
				counts.Verified++
			} else {
				counts.Rejected++
			}
		}
	}

	assembled, err := e.runAssemble(ctx, results, timings)
	if err != nil {
		return nil, err
	}
	counts.Assembled = len(assembled.Sources)
	e.recordCount(types.StageAssemble, counts.Assembled)

	result := types.RAGResult{
		ID:             uuid.NewString(),
		Query:          query,
		EffectiveQuery: effective,
		Context:        *assembled,
		Counts:         counts,
		Timings:        timings,
		CreatedAt:      time.Now().UTC(),
	}
	if e.config.IncludeResults {
		result.Results = results
	}

	e.resultCache.Set(ctx, key, result, 0)
	return &result, nil
}

// enhanceStage rewrites the query when the stage is enabled. Failures
// propagate with ENHANCEMENT_FAILED; a caller that prefers degrading to
// the original query can match the code and retry with enhancement off.
func (e *Engine) enhanceStage(ctx context.Context, query string, timings map[types.Stage]time.Duration) (string, error) {
	if !e.config.Stages.Enhance {
		return query, nil
	}
	if e.enhancer == nil {
		return "", types.NewError(types.ErrConfigError, "enhance stage enabled but no enhancer attached").
			WithStage(types.StageEnhance)
	}

	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	started := time.Now()
	effective, err := e.enhancer.Enhance(sctx, query)
	timings[types.StageEnhance] = time.Since(started)
	e.recordStage(types.StageEnhance, timings[types.StageEnhance])

	if err != nil {
		e.recordStageError(types.StageEnhance, err)
		return "", err
	}
	return effective, nil
}

func (e *Engine) runRetrieve(ctx context.Context, query string, filters map[string]string, timings map[types.Stage]time.Duration) ([]types.RetrievalResult, error) {
	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	started := time.Now()
	results, err := e.retriever.Retrieve(sctx, query, filters)
	timings[types.StageRetrieve] = time.Since(started)
	e.recordStage(types.StageRetrieve, timings[types.StageRetrieve])
	if err != nil {
		e.recordStageError(types.StageRetrieve, err)
		return nil, err
	}
	return results, nil
}

func (e *Engine) runRerank(ctx context.Context, query string, results []types.RetrievalResult, timings map[types.Stage]time.Duration) ([]types.RetrievalResult, error) {
	if e.reranker == nil {
		return nil, types.NewError(types.ErrConfigError, "rerank stage enabled but no reranker attached").
			WithStage(types.StageRerank)
	}
	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	started := time.Now()
	reranked, err := e.reranker.Rerank(sctx, query, results)
	timings[types.StageRerank] = time.Since(started)
	e.recordStage(types.StageRerank, timings[types.StageRerank])
	if err != nil {
		e.recordStageError(types.StageRerank, err)
		return nil, err
	}
	return reranked, nil
}

func (e *Engine) runVerify(ctx context.Context, query string, results []types.RetrievalResult, timings map[types.Stage]time.Duration) ([]types.RetrievalResult, error) {
	if e.verifier == nil {
		return nil, types.NewError(types.ErrConfigError, "verify stage enabled but no verifier attached").
			WithStage(types.StageVerify)
	}
	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	started := time.Now()
	verified, err := e.verifier.Verify(sctx, query, results)
	timings[types.StageVerify] = time.Since(started)
	e.recordStage(types.StageVerify, timings[types.StageVerify])
	if err != nil {
		e.recordStageError(types.StageVerify, err)
		return nil, err
	}
	if e.collector != nil {
		tally := verify.Tally(verified)
		e.collector.RecordVerifyOutcomes("judged", tally.Judged)
		e.collector.RecordVerifyOutcomes("skipped", tally.Skipped)
		e.collector.RecordVerifyOutcomes("rejected", tally.Rejected)
	}
	return verified, nil
}

func (e *Engine) runAssemble(ctx context.Context, results []types.RetrievalResult, timings map[types.Stage]time.Duration) (*types.AssembledContext, error) {
	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	started := time.Now()
	assembled, err := e.assembler.Assemble(sctx, results)
	timings[types.StageAssemble] = time.Since(started)
	e.recordStage(types.StageAssemble, timings[types.StageAssemble])
	if err != nil {
		e.recordStageError(types.StageAssemble, err)
		return nil, err
	}
	return assembled, nil
}

func (e *Engine) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.StageTimeout > 0 {
		return context.WithTimeout(ctx, e.config.StageTimeout)
	}
	return ctx, func() {}
}

// WarmUp primes lazily initialized components: the assembler's token
// counter (tiktoken may download vocabulary data on first use) and the
// result cache connection. Call it at startup so the first search does
// not pay for either.
func (e *Engine) WarmUp(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return types.NewError(types.ErrAborted, "warmup canceled").WithCause(err)
	}
	if err := e.assembler.WarmUp(); err != nil {
		return types.NewError(types.ErrAssemblyFailed, "token counter init failed").
			WithStage(types.StageAssemble).WithCause(err)
	}
	e.resultCache.Has(ctx, "warmup")
	e.logger.Debug("engine warmed up")
	return nil
}

// ClearCache drops all cached search results.
func (e *Engine) ClearCache(ctx context.Context) {
	e.resultCache.Clear(ctx)
}

// CacheStats reports result cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.resultCache.Stats()
}

func (e *Engine) recordSearch(status string) {
	if e.collector != nil {
		e.collector.RecordSearch(status)
	}
}

func (e *Engine) recordStage(stage types.Stage, d time.Duration) {
	if e.collector != nil {
		e.collector.RecordStage(string(stage), d)
	}
}

func (e *Engine) recordStageError(stage types.Stage, err error) {
	if e.collector != nil {
		e.collector.RecordStageError(string(stage), string(types.GetErrorCode(err)))
	}
}

func (e *Engine) recordCache(hit bool) {
	if e.collector == nil {
		return
	}
	if hit {
		e.collector.RecordCacheHit("result")
	} else {
		e.collector.RecordCacheMiss("result")
	}
}

func (e *Engine) recordCount(stage types.Stage, n int) {
	if e.collector != nil {
		e.collector.RecordResultCount(string(stage), n)
	}
}
