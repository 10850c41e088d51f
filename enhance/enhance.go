// Package enhance rewrites user queries before retrieval. A short or
// conversational query often retrieves poorly as-is; the enhancers here
// expand it with related terms or rewrite it into retrieval-friendly form.
package enhance

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// QueryEnhancer rewrites a query for better retrieval. Implementations
// return the rewritten query; returning the input unchanged is valid.
type QueryEnhancer interface {
	Enhance(ctx context.Context, query string) (string, error)
}

// CompletionFn generates a completion for the given prompt. It is the
// only LLM surface the enhancer needs, so callers can back it with any
// provider.
type CompletionFn func(ctx context.Context, prompt string) (string, error)

const rewritePrompt = `Rewrite the following search query so it retrieves well from a document index. Expand abbreviations, add likely synonyms, and keep it to one line. Reply with the rewritten query only.

Query: `

// LLMEnhancer rewrites queries through an LLM completion.
type LLMEnhancer struct {
	complete CompletionFn
	logger   *zap.Logger
}

// NewLLMEnhancer creates an enhancer over the completion function.
func NewLLMEnhancer(complete CompletionFn, logger *zap.Logger) (*LLMEnhancer, error) {
	if complete == nil {
		return nil, types.NewError(types.ErrConfigError, "completion function is required").
			WithStage(types.StageEnhance)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMEnhancer{
		complete: complete,
		logger:   logger.With(zap.String("component", "enhancer")),
	}, nil
}

// Enhance asks the model for a retrieval-optimized rewrite. A blank
// response keeps the original query.
func (e *LLMEnhancer) Enhance(ctx context.Context, query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", types.NewError(types.ErrInvalidQuery, "query is empty").
			WithStage(types.StageEnhance)
	}

	response, err := e.complete(ctx, rewritePrompt+trimmed)
	if err != nil {
		if ctx.Err() != nil {
			return "", types.NewError(types.ErrAborted, "enhancement canceled").
				WithStage(types.StageEnhance).WithCause(err)
		}
		return "", types.NewError(types.ErrEnhancementFailed, "completion failed").
			WithStage(types.StageEnhance).WithCause(err)
	}

	rewritten := strings.TrimSpace(firstLine(response))
	if rewritten == "" {
		e.logger.Debug("model returned an empty rewrite, keeping original query")
		return trimmed, nil
	}
	return rewritten, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
