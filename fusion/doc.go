// Package fusion implements Reciprocal Rank Fusion, the rank-based method
// used to combine independent retrieval signals (dense vector ranks, sparse
// BM25 ranks) into one ranked list.
//
// RRF deliberately ignores raw score magnitude: only rank position matters,
// which makes it robust to incomparable scoring scales such as cosine
// similarity versus BM25. A min-max normalization helper is provided for
// callers that want to blend raw scores alongside fused ranks.
package fusion
