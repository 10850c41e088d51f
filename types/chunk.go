package types

// Chunk is an immutable piece of indexed content. Chunks are owned by the
// vector store or corpus that produced them; the pipeline only references
// them by ID.
type Chunk struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RetrievalResult is one candidate produced by a retriever for a single
// search. Rerank and verification stages add fields; nothing is ever removed.
type RetrievalResult struct {
	ID           string              `json:"id"`
	Chunk        Chunk               `json:"chunk"`
	Score        float64             `json:"score"`
	Confidence   *ConfidenceScore    `json:"confidence,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
}

// ConfidenceScore estimates how likely a candidate is relevant, derived
// purely from retrieval signals (rank agreement between dense and sparse,
// score consistency). It never involves an LLM call.
type ConfidenceScore struct {
	Overall float64            `json:"overall"`
	Signals map[string]float64 `json:"signals,omitempty"`
	Factors ConfidenceFactors  `json:"factors"`
}

// ConfidenceFactors are the individual components that Overall is blended
// from. All values are in [0,1].
type ConfidenceFactors struct {
	RankAgreement       float64 `json:"rank_agreement"`
	ScoreConsistency    float64 `json:"score_consistency"`
	SignalCount         float64 `json:"signal_count"`
	MultiSignalPresence float64 `json:"multi_signal_presence"`
}

// VerificationResult records the outcome of the relevance check for one
// candidate. Score is on a 0-10 scale; auto-decisions use the sentinel
// scores 10 (accepted on confidence) and 0 (rejected on confidence).
type VerificationResult struct {
	Verified   bool    `json:"verified"`
	Score      int     `json:"verification_score"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}
