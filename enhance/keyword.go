package enhance

import (
	"context"
	"strings"

	"github.com/BaSui01/ragflow/types"
)

// stopwords are filler words that carry no retrieval signal.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "can": {}, "could": {}, "would": {},
	"should": {}, "i": {}, "my": {}, "me": {}, "we": {}, "our": {}, "you": {},
	"your": {}, "it": {}, "its": {}, "to": {}, "of": {}, "in": {}, "on": {},
	"for": {}, "with": {}, "about": {}, "how": {}, "what": {}, "why": {},
	"when": {}, "where": {}, "who": {}, "which": {}, "please": {}, "help": {},
}

// KeywordEnhancer strips question scaffolding down to content terms. It
// needs no LLM, so it suits latency-sensitive or offline deployments.
type KeywordEnhancer struct{}

// NewKeywordEnhancer creates the heuristic enhancer.
func NewKeywordEnhancer() *KeywordEnhancer {
	return &KeywordEnhancer{}
}

func (e *KeywordEnhancer) Enhance(_ context.Context, query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", types.NewError(types.ErrInvalidQuery, "query is empty").
			WithStage(types.StageEnhance)
	}

	var kept []string
	for _, field := range strings.Fields(trimmed) {
		word := strings.Trim(strings.ToLower(field), ".,;:!?\"'()[]{}")
		if word == "" {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		kept = append(kept, word)
	}

	// A query of nothing but stopwords stays as typed; an empty rewrite
	// would retrieve nothing.
	if len(kept) == 0 {
		return trimmed, nil
	}
	return strings.Join(kept, " "), nil
}
