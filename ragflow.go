// Package ragflow provides a top-level convenience entry point for building
// a search engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/ragflow"
//
//	e, err := ragflow.New(
//	    ragflow.WithCorpus(chunks, embedFn),
//	    ragflow.WithJudge(judgeFn),
//	)
//	result, err := e.Search(ctx, "how do I reset my password")
//
// Every component the options wire up can also be constructed directly from
// the engine, retrieval, verify, rerank, and assemble packages when more
// control is needed.
package ragflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/assemble"
	"github.com/BaSui01/ragflow/cache"
	"github.com/BaSui01/ragflow/engine"
	"github.com/BaSui01/ragflow/enhance"
	"github.com/BaSui01/ragflow/rerank"
	"github.com/BaSui01/ragflow/retrieval"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/verify"
)

// Re-export the core types so simple callers never import subpackages.
type (
	Chunk         = types.Chunk
	RAGResult     = types.RAGResult
	SearchOptions = engine.SearchOptions
	Engine        = engine.Engine
)

// EmbeddingFunc converts text to a vector. See [retrieval.EmbeddingFunc].
type EmbeddingFunc = retrieval.EmbeddingFunc

type builder struct {
	config    engine.Config
	configSet bool
	logger    *zap.Logger
	retriever retrieval.Retriever
	enhancer  enhance.QueryEnhancer
	reranker  rerank.Reranker
	verifier  *verify.Verifier
	judge     verify.JudgeFunc
	assembler *assemble.Assembler
	redisAddr string
	corpus    []types.Chunk
	embed     EmbeddingFunc
	buildErr  error
}

// Option configures the engine created by [New].
type Option func(*builder)

// WithConfig replaces the default configuration.
func WithConfig(config engine.Config) Option {
	return func(b *builder) {
		b.config = config
		b.configSet = true
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(b *builder) {
		config, err := engine.LoadConfig(path)
		if err != nil {
			b.buildErr = err
			return
		}
		b.config = config
		b.configSet = true
	}
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// WithRetriever sets a pre-built retriever.
func WithRetriever(r retrieval.Retriever) Option {
	return func(b *builder) { b.retriever = r }
}

// WithCorpus indexes the chunks into an in-memory hybrid retriever,
// embedding each chunk with embed. Suits tests, examples, and corpora
// small enough to live in process memory.
func WithCorpus(chunks []types.Chunk, embed EmbeddingFunc) Option {
	return func(b *builder) {
		b.corpus = chunks
		b.embed = embed
	}
}

// WithEnhancer enables the query enhancement stage.
func WithEnhancer(e enhance.QueryEnhancer) Option {
	return func(b *builder) { b.enhancer = e }
}

// WithKeywordEnhancer enables heuristic keyword extraction.
func WithKeywordEnhancer() Option {
	return func(b *builder) { b.enhancer = enhance.NewKeywordEnhancer() }
}

// WithReranker enables the reranking stage with a custom reranker.
func WithReranker(r rerank.Reranker) Option {
	return func(b *builder) { b.reranker = r }
}

// WithJudge enables the verification stage with the given judge.
func WithJudge(judge verify.JudgeFunc) Option {
	return func(b *builder) { b.judge = judge }
}

// WithVerifier enables the verification stage with a pre-built verifier.
func WithVerifier(v *verify.Verifier) Option {
	return func(b *builder) { b.verifier = v }
}

// WithAssembler replaces the default context assembler.
func WithAssembler(a *assemble.Assembler) Option {
	return func(b *builder) { b.assembler = a }
}

// WithRedisCache backs the result cache with Redis at addr.
func WithRedisCache(addr string) Option {
	return func(b *builder) { b.redisAddr = addr }
}

// New creates an [engine.Engine]. A retrieval source must come from
// [WithRetriever] or [WithCorpus].
func New(opts ...Option) (*engine.Engine, error) {
	b := &builder{config: engine.DefaultConfig()}
	for _, opt := range opts {
		opt(b)
	}
	if b.buildErr != nil {
		return nil, b.buildErr
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if b.retriever == nil && b.corpus != nil {
		retriever, err := buildCorpusRetriever(b.config.Retrieval, b.corpus, b.embed, logger)
		if err != nil {
			return nil, err
		}
		b.retriever = retriever
	}
	if b.retriever == nil {
		return nil, types.NewError(types.ErrConfigError, "a retriever is required, use WithRetriever or WithCorpus")
	}

	if !b.configSet {
		// Match the stage toggles to what was actually wired instead of
		// failing on missing components.
		b.config.Stages.Enhance = b.enhancer != nil
		b.config.Stages.Rerank = b.reranker != nil
		b.config.Stages.Verify = b.verifier != nil || b.judge != nil
	}

	if b.verifier == nil && b.judge != nil {
		verifier, err := verify.NewVerifier(b.config.Verify, b.judge, logger)
		if err != nil {
			return nil, err
		}
		b.verifier = verifier
	}

	e, err := engine.NewEngine(b.config, b.retriever, logger)
	if err != nil {
		return nil, err
	}
	if b.enhancer != nil {
		e.WithEnhancer(b.enhancer)
	}
	if b.reranker != nil {
		e.WithReranker(b.reranker)
	}
	if b.verifier != nil {
		e.WithVerifier(b.verifier)
	}
	if b.assembler != nil {
		e.WithAssembler(b.assembler)
	}
	if b.redisAddr != "" {
		redisCache, err := cache.NewRedis[types.RAGResult](cache.RedisConfig{Addr: b.redisAddr}, logger)
		if err != nil {
			return nil, err
		}
		e.WithResultCache(redisCache)
	}
	return e, nil
}

func buildCorpusRetriever(config retrieval.HybridConfig, corpus []types.Chunk, embed EmbeddingFunc, logger *zap.Logger) (retrieval.Retriever, error) {
	sparse := retrieval.NewSparseRetriever(retrieval.SparseConfig{}, logger)
	sparse.Index(corpus)

	var dense *retrieval.DenseRetriever
	chunks := retrieval.ChunkGetter(sparse)
	if embed != nil {
		store := retrieval.NewMemoryVectorStore(logger)
		for _, c := range corpus {
			vector, err := embed(context.Background(), c.Content)
			if err != nil {
				return nil, types.NewError(types.ErrEmbeddingFailed, "embed corpus chunk "+c.ID).WithCause(err)
			}
			if err := store.Add(c, vector); err != nil {
				return nil, err
			}
		}
		dense = retrieval.NewDenseRetriever(embed, store, nil, logger)
		chunks = store
	} else {
		config.UseDense = false
		config.UseSparse = true
	}

	return retrieval.NewHybridRetriever(config, dense, sparse, chunks, logger), nil
}
