package assemble

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// Ordering selects how surviving chunks are arranged in the final context.
type Ordering string

const (
	// OrderRelevance keeps the ranked order as delivered by retrieval.
	OrderRelevance Ordering = "relevance"

	// OrderSandwich places the strongest chunks at the start and end of
	// the context, pushing weak ones into the middle where models pay
	// the least attention.
	OrderSandwich Ordering = "sandwich"

	// OrderChronological sorts chunks by their timestamp metadata,
	// oldest first. Chunks without a timestamp keep their relative
	// order after the dated ones.
	OrderChronological Ordering = "chronological"
)

// timestampKey is the metadata key consulted by chronological ordering.
const timestampKey = "timestamp"

// separator joins formatted context entries.
const separator = "\n\n"

// Config tunes context assembly.
type Config struct {
	// MaxTokens is the context token budget.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// Ordering selects the arrangement strategy.
	Ordering Ordering `yaml:"ordering" json:"ordering"`

	// DedupThreshold is the term-overlap similarity above which two
	// chunks count as near-duplicates. Zero disables near-duplicate
	// detection; exact duplicates are always removed.
	DedupThreshold float64 `yaml:"dedup_threshold" json:"dedup_threshold"`
}

// DefaultConfig returns the default assembly configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens:      4000,
		Ordering:       OrderRelevance,
		DedupThreshold: 0.9,
	}
}

// Assembler builds the final context block from verified results.
type Assembler struct {
	config  Config
	counter TokenCounter
	logger  *zap.Logger
}

// NewAssembler creates an assembler with the heuristic token counter.
func NewAssembler(config Config, logger *zap.Logger) *Assembler {
	defaults := DefaultConfig()
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Ordering == "" {
		config.Ordering = defaults.Ordering
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		config:  config,
		counter: NewEstimator(),
		logger:  logger.With(zap.String("component", "assembler")),
	}
}

// WithTokenCounter swaps the token counter, e.g. for exact tiktoken
// counting.
func (a *Assembler) WithTokenCounter(c TokenCounter) *Assembler {
	if c != nil {
		a.counter = c
	}
	return a
}

// WarmUp initializes the token counter if it loads resources lazily, so
// the first assembly does not pay the cost.
func (a *Assembler) WarmUp() error {
	if counter, ok := a.counter.(interface{ Init() error }); ok {
		return counter.Init()
	}
	return nil
}

// Assemble deduplicates, orders, budgets, and formats the results into a
// single context. Rejected candidates (verified == false) are excluded
// before any other step.
func (a *Assembler) Assemble(ctx context.Context, results []types.RetrievalResult) (*types.AssembledContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrAborted, "assembly canceled").
			WithStage(types.StageAssemble).WithCause(err)
	}

	kept := make([]types.RetrievalResult, 0, len(results))
	for _, r := range results {
		if r.Verification != nil && !r.Verification.Verified {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return &types.AssembledContext{Sources: []types.ContextSource{}}, nil
	}

	deduped := a.dedup(kept)
	ordered := a.order(deduped)
	assembled := a.budget(ordered)

	a.logger.Debug("context assembled",
		zap.Int("candidates", len(results)),
		zap.Int("after_dedup", len(deduped)),
		zap.Int("included", len(assembled.Sources)),
		zap.Int("dropped", assembled.DroppedCount),
		zap.Int("tokens", assembled.EstimatedTokens))

	return assembled, nil
}

// dedup removes exact and near-duplicate chunks, always keeping the first
// (highest ranked) occurrence.
func (a *Assembler) dedup(results []types.RetrievalResult) []types.RetrievalResult {
	out := make([]types.RetrievalResult, 0, len(results))
	seenIDs := make(map[string]struct{}, len(results))
	seenContent := make(map[string]struct{}, len(results))
	var keptTerms []map[string]struct{}

	for _, r := range results {
		if _, ok := seenIDs[r.ID]; ok {
			continue
		}
		content := strings.TrimSpace(r.Chunk.Content)
		if _, ok := seenContent[content]; ok {
			continue
		}

		terms := termSet(content)
		if a.config.DedupThreshold > 0 && isNearDuplicate(terms, keptTerms, a.config.DedupThreshold) {
			continue
		}

		seenIDs[r.ID] = struct{}{}
		seenContent[content] = struct{}{}
		keptTerms = append(keptTerms, terms)
		out = append(out, r)
	}
	return out
}

func (a *Assembler) order(results []types.RetrievalResult) []types.RetrievalResult {
	switch a.config.Ordering {
	case OrderSandwich:
		return sandwichOrder(results)
	case OrderChronological:
		return chronologicalOrder(results)
	default:
		return results
	}
}

// sandwichOrder alternates ranked items between the front and the back so
// the weakest land in the middle.
func sandwichOrder(results []types.RetrievalResult) []types.RetrievalResult {
	out := make([]types.RetrievalResult, len(results))
	front, back := 0, len(results)-1
	for i, r := range results {
		if i%2 == 0 {
			out[front] = r
			front++
		} else {
			out[back] = r
			back--
		}
	}
	return out
}

func chronologicalOrder(results []types.RetrievalResult) []types.RetrievalResult {
	out := make([]types.RetrievalResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		ti, iok := chunkTime(out[i].Chunk)
		tj, jok := chunkTime(out[j].Chunk)
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		return ti.Before(tj)
	})
	return out
}

func chunkTime(c types.Chunk) (time.Time, bool) {
	raw, ok := c.Metadata[timestampKey]
	if !ok {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	}
	return time.Time{}, false
}

// budget includes ordered chunks until one would overflow the token
// budget; that chunk and everything after it drops, so a lower-priority
// chunk can never displace a higher-priority one. Only the very first
// chunk may be truncated, and only when it alone exceeds the whole budget.
func (a *Assembler) budget(ordered []types.RetrievalResult) *types.AssembledContext {
	var (
		entries   []string
		sources   []types.ContextSource
		total     int
		dropped   int
		truncated bool
	)

	for i, r := range ordered {
		entry := formatEntry(len(entries)+1, r)
		cost := a.counter.CountTokens(entry)
		if len(entries) > 0 {
			cost += a.counter.CountTokens(separator)
		}

		if total+cost > a.config.MaxTokens {
			if len(entries) == 0 {
				entry = a.truncateEntry(r)
			} else {
				entry = ""
			}
			if entry == "" {
				dropped = len(ordered) - i
				break
			}
			truncated = true
			cost = a.counter.CountTokens(entry)
		}

		entries = append(entries, entry)
		total += cost
		sources = append(sources, types.ContextSource{
			Index:   len(entries),
			ChunkID: r.Chunk.ID,
			Source:  chunkSource(r.Chunk),
			Score:   r.Score,
		})
	}

	if sources == nil {
		sources = []types.ContextSource{}
	}
	content := strings.Join(entries, separator)
	return &types.AssembledContext{
		Content:         content,
		Sources:         sources,
		EstimatedTokens: a.counter.CountTokens(content),
		DroppedCount:    dropped,
		Truncated:       truncated,
	}
}

// truncateEntry cuts the chunk content at a rune boundary so the formatted
// entry fits the budget. Returns "" when even a minimal prefix will not
// fit.
func (a *Assembler) truncateEntry(r types.RetrievalResult) string {
	runes := []rune(r.Chunk.Content)

	fits := func(n int) bool {
		trimmed := r
		trimmed.Chunk.Content = string(runes[:n]) + "..."
		return a.counter.CountTokens(formatEntry(1, trimmed)) <= a.config.MaxTokens
	}

	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return ""
	}

	trimmed := r
	trimmed.Chunk.Content = string(runes[:lo]) + "..."
	return formatEntry(1, trimmed)
}

func formatEntry(index int, r types.RetrievalResult) string {
	source := chunkSource(r.Chunk)
	if source != "" {
		return fmt.Sprintf("[%d] (%s) %s", index, source, r.Chunk.Content)
	}
	return fmt.Sprintf("[%d] %s", index, r.Chunk.Content)
}

func chunkSource(c types.Chunk) string {
	if s, ok := c.Metadata["source"].(string); ok {
		return s
	}
	return ""
}

func termSet(content string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(content))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.Trim(f, ".,;:!?\"'()[]{}")] = struct{}{}
	}
	delete(set, "")
	return set
}

// isNearDuplicate reports whether terms overlaps any kept set above the
// threshold, measured as Jaccard similarity.
func isNearDuplicate(terms map[string]struct{}, kept []map[string]struct{}, threshold float64) bool {
	for _, other := range kept {
		if jaccard(terms, other) >= threshold {
			return true
		}
	}
	return false
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
