// Package cache provides the key-value caches used across the pipeline to
// memoize expensive calls: query embeddings, search results, and final
// assembled answers.
//
// Three interchangeable providers implement the same [Provider] interface:
// an in-process LRU with lazy TTL expiry ([LRU]), a Null Object that never
// stores anything ([Noop]), and a Redis-backed provider for sharing a cache
// across processes ([Redis]).
package cache
