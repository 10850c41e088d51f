package types

import "time"

// Stage identifies a pipeline stage, used in timings and errors.
type Stage string

const (
	StageEnhance  Stage = "enhance"
	StageRetrieve Stage = "retrieve"
	StageRerank   Stage = "rerank"
	StageVerify   Stage = "verify"
	StageAssemble Stage = "assemble"
	StageCache    Stage = "cache"
)

// ContextSource is one citation entry in the assembled context. Index is
// 1-based and matches the citation markers rendered into Content.
type ContextSource struct {
	Index   int     `json:"index"`
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score"`
}

// AssembledContext is the final, token-budgeted context string plus its
// citation metadata. EstimatedTokens never exceeds the configured budget.
type AssembledContext struct {
	Content         string          `json:"content"`
	Sources         []ContextSource `json:"sources"`
	EstimatedTokens int             `json:"estimated_tokens"`
	DroppedCount    int             `json:"dropped_count"`
	Truncated       bool            `json:"truncated,omitempty"`
}

// StageCounts records per-stage candidate counts for observability.
type StageCounts struct {
	Retrieved int `json:"retrieved"`
	Reranked  int `json:"reranked,omitempty"`
	Verified  int `json:"verified,omitempty"`
	Rejected  int `json:"rejected,omitempty"`
	Assembled int `json:"assembled"`
}

// RAGResult is the aggregate outcome of one search call. It is immutable
// once returned. Timings only contains entries for stages that actually ran.
type RAGResult struct {
	ID             string                  `json:"id"`
	Query          string                  `json:"query"`
	EffectiveQuery string                  `json:"effective_query"`
	Context        AssembledContext        `json:"context"`
	Results        []RetrievalResult       `json:"results,omitempty"`
	Counts         StageCounts             `json:"counts"`
	Timings        map[Stage]time.Duration `json:"timings"`
	FromCache      bool                    `json:"from_cache"`
	CreatedAt      time.Time               `json:"created_at"`
}
