// Package types defines the shared data model and error taxonomy for the
// ragflow pipeline: chunks, retrieval results, confidence and verification
// records, the assembled context, and the final search result.
//
// The package has no dependencies of its own so every pipeline stage can
// exchange values without import cycles.
package types
