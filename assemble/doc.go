// Package assemble turns verified retrieval results into a single prompt
// context block. It deduplicates overlapping chunks, orders them by the
// configured strategy, enforces the token budget greedily, and formats the
// survivors with citation markers.
package assemble
