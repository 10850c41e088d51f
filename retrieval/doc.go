// Package retrieval implements the ranking-signal producers of the
// pipeline: a sparse BM25 retriever over an indexed corpus, a dense
// retriever over an embedding function plus vector store, and a hybrid
// retriever that runs both concurrently and combines their rankings with
// Reciprocal Rank Fusion.
//
// The hybrid retriever also derives a per-candidate confidence score from
// the retrieval signals alone, which the verification stage uses to decide
// whether an LLM relevance judgment is worth paying for.
package retrieval
