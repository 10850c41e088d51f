// Package rerank reorders retrieval candidates using a secondary relevance
// signal. Two implementations are provided: a lexical term-overlap reranker
// that needs no external calls, and an LLM-backed reranker over an opaque
// scoring function.
package rerank
