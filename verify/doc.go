// Package verify implements the confidence-gated relevance check. Most
// candidates are decided from their retrieval confidence alone: high
// confidence is accepted outright and low confidence rejected outright.
// Only the ambiguous middle band pays for an LLM judgment, dispatched
// through a pluggable judge function under a concurrency bound.
package verify
