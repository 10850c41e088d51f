package assemble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/ragflow/types"
)

// bulkyResult builds a result whose content estimates to roughly 100
// tokens, with a vocabulary unique to its id so dedup never collapses two
// of them.
func bulkyResult(i int, score float64) types.RetrievalResult {
	id := fmt.Sprintf("doc-%d", i)
	return types.RetrievalResult{
		ID: id,
		Chunk: types.Chunk{
			ID:      id,
			Content: strings.TrimSpace(strings.Repeat(fmt.Sprintf("word%d ", i), 67)),
		},
		Score: score,
	}
}

func smallResult(id, content string, score float64) types.RetrievalResult {
	return types.RetrievalResult{
		ID:    id,
		Chunk: types.Chunk{ID: id, Content: content},
		Score: score,
	}
}

func TestAssembleTokenBudget(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{MaxTokens: 150}, nil)
	results := []types.RetrievalResult{
		bulkyResult(0, 0.9),
		bulkyResult(1, 0.8),
		bulkyResult(2, 0.7),
	}

	out, err := a.Assemble(context.Background(), results)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(out.Sources) != 1 {
		t.Fatalf("got %d sources, want 1 within the budget", len(out.Sources))
	}
	if out.DroppedCount != 2 {
		t.Errorf("DroppedCount = %d, want 2", out.DroppedCount)
	}
	if out.Truncated {
		t.Error("no chunk should be truncated when the first one fits whole")
	}
	if out.Sources[0].ChunkID != "doc-0" {
		t.Errorf("kept %s, want the top-ranked doc-0", out.Sources[0].ChunkID)
	}
	if out.EstimatedTokens > 150 {
		t.Errorf("EstimatedTokens = %d, exceeds budget", out.EstimatedTokens)
	}
}

func TestAssembleTruncatesOversizedHead(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{MaxTokens: 50}, nil)
	big := smallResult("huge", strings.TrimSpace(strings.Repeat("héllo wörld ", 300)), 0.9)

	out, err := a.Assemble(context.Background(), []types.RetrievalResult{big})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !out.Truncated {
		t.Fatal("oversized head chunk should be truncated, not dropped")
	}
	if len(out.Sources) != 1 || out.DroppedCount != 0 {
		t.Fatalf("sources=%d dropped=%d, want 1/0", len(out.Sources), out.DroppedCount)
	}
	if out.EstimatedTokens > 50 {
		t.Errorf("EstimatedTokens = %d, exceeds budget after truncation", out.EstimatedTokens)
	}
	if !strings.HasSuffix(out.Content, "...") {
		t.Errorf("truncated content should end with ellipsis: %q", out.Content[len(out.Content)-20:])
	}
	// A cut inside a multibyte rune would leave invalid UTF-8.
	if !strings.HasPrefix(out.Content, "[1] héllo") {
		t.Errorf("content start mangled: %q", out.Content[:20])
	}
}

func TestAssembleOverflowDropsAllLowerPriority(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{MaxTokens: 150}, nil)
	small := smallResult("doc-small", strings.TrimSpace(strings.Repeat("small tail chunk words ", 5)), 0.7)
	results := []types.RetrievalResult{
		bulkyResult(0, 0.9), // ~100 tokens, fits
		bulkyResult(1, 0.8), // overflows, drops
		small,               // would fit, but must not jump the dropped chunk
	}

	out, err := a.Assemble(context.Background(), results)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(out.Sources) != 1 || out.Sources[0].ChunkID != "doc-0" {
		t.Fatalf("sources = %+v, want only doc-0", out.Sources)
	}
	if out.DroppedCount != 2 {
		t.Errorf("DroppedCount = %d, want 2", out.DroppedCount)
	}
	if strings.Contains(out.Content, "small tail chunk") {
		t.Error("a chunk after the overflow point leaked into the context")
	}
}

func TestAssembleOnlyHeadIsTruncated(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{MaxTokens: 120}, nil)
	results := []types.RetrievalResult{
		bulkyResult(0, 0.9), // ~100 tokens, fits
		bulkyResult(1, 0.8), // would need truncation, must drop instead
	}

	out, err := a.Assemble(context.Background(), results)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if out.Truncated {
		t.Error("non-head chunks must be dropped, never truncated")
	}
	if len(out.Sources) != 1 || out.DroppedCount != 1 {
		t.Errorf("sources=%d dropped=%d, want 1/1", len(out.Sources), out.DroppedCount)
	}
}

func TestAssembleDedup(t *testing.T) {
	t.Parallel()

	a := NewAssembler(DefaultConfig(), nil)
	results := []types.RetrievalResult{
		smallResult("a", "Reset your password from the account settings page.", 0.9),
		smallResult("b", "Reset your password from the account settings page.", 0.8),
		smallResult("a", "same id again", 0.7),
		smallResult("c", "reset your password from the account settings page!", 0.6),
		smallResult("d", "Billing invoices are emailed on the first of the month.", 0.5),
	}

	out, err := a.Assemble(context.Background(), results)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(out.Sources) != 2 {
		t.Fatalf("got %d sources, want 2 after dedup: %+v", len(out.Sources), out.Sources)
	}
	if out.Sources[0].ChunkID != "a" || out.Sources[1].ChunkID != "d" {
		t.Errorf("kept %s/%s, want a/d", out.Sources[0].ChunkID, out.Sources[1].ChunkID)
	}
}

func TestAssembleExcludesRejected(t *testing.T) {
	t.Parallel()

	rejected := smallResult("bad", "Unrelated trivia about penguins.", 0.9)
	rejected.Verification = &types.VerificationResult{Verified: false, Score: 0}
	verified := smallResult("good", "How to reset a forgotten password.", 0.8)
	verified.Verification = &types.VerificationResult{Verified: true, Score: 9}

	a := NewAssembler(DefaultConfig(), nil)
	out, err := a.Assemble(context.Background(), []types.RetrievalResult{rejected, verified})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(out.Sources) != 1 || out.Sources[0].ChunkID != "good" {
		t.Fatalf("rejected chunk leaked into the context: %+v", out.Sources)
	}
}

func TestAssembleCitations(t *testing.T) {
	t.Parallel()

	a := NewAssembler(DefaultConfig(), nil)
	results := []types.RetrievalResult{
		smallResult("x", "First passage about login.", 0.9),
		smallResult("y", "Second passage about billing.", 0.8),
	}
	results[0].Chunk.Metadata = map[string]any{"source": "help/login.md"}

	out, err := a.Assemble(context.Background(), results)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(out.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(out.Sources))
	}
	for i, s := range out.Sources {
		if s.Index != i+1 {
			t.Errorf("source %d has index %d, want 1-based contiguous", i, s.Index)
		}
	}
	if out.Sources[0].Source != "help/login.md" {
		t.Errorf("source metadata not carried: %+v", out.Sources[0])
	}
	if !strings.Contains(out.Content, "[1] (help/login.md) First passage") {
		t.Errorf("citation marker missing: %q", out.Content)
	}
	if !strings.Contains(out.Content, "[2] Second passage") {
		t.Errorf("second citation missing: %q", out.Content)
	}
}

func TestAssembleSandwichOrdering(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{Ordering: OrderSandwich}, nil)
	results := []types.RetrievalResult{
		smallResult("r1", "strongest unique alpha", 0.9),
		smallResult("r2", "second unique bravo", 0.8),
		smallResult("r3", "third unique charlie", 0.7),
		smallResult("r4", "fourth unique delta", 0.6),
		smallResult("r5", "weakest unique echo", 0.5),
	}

	out, err := a.Assemble(context.Background(), results)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := make([]string, len(out.Sources))
	for i, s := range out.Sources {
		got[i] = s.ChunkID
	}
	want := []string{"r1", "r3", "r5", "r4", "r2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sandwich order = %v, want %v", got, want)
		}
	}
}

func TestAssembleChronologicalOrdering(t *testing.T) {
	t.Parallel()

	older := smallResult("old", "incident started with elevated latency", 0.5)
	older.Chunk.Metadata = map[string]any{"timestamp": "2026-03-01T10:00:00Z"}
	newer := smallResult("new", "incident resolved after failover", 0.9)
	newer.Chunk.Metadata = map[string]any{"timestamp": "2026-03-01T14:30:00Z"}
	undated := smallResult("undated", "general runbook reference", 0.7)

	a := NewAssembler(Config{Ordering: OrderChronological}, nil)
	out, err := a.Assemble(context.Background(), []types.RetrievalResult{newer, undated, older})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := []string{out.Sources[0].ChunkID, out.Sources[1].ChunkID, out.Sources[2].ChunkID}
	if got[0] != "old" || got[1] != "new" || got[2] != "undated" {
		t.Fatalf("chronological order = %v, want [old new undated]", got)
	}
}

func TestAssembleEmptyInput(t *testing.T) {
	t.Parallel()

	a := NewAssembler(DefaultConfig(), nil)
	out, err := a.Assemble(context.Background(), nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if out.Content != "" || len(out.Sources) != 0 || out.DroppedCount != 0 {
		t.Fatalf("empty input should produce an empty context: %+v", out)
	}
}

func TestAssembleCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAssembler(DefaultConfig(), nil)
	_, err := a.Assemble(ctx, []types.RetrievalResult{smallResult("a", "text", 0.9)})
	if !types.IsCode(err, types.ErrAborted) {
		t.Fatalf("got %v, want ABORTED", err)
	}
}

func TestEstimatorCounts(t *testing.T) {
	t.Parallel()

	e := NewEstimator()
	if got := e.CountTokens(""); got != 0 {
		t.Errorf("empty = %d, want 0", got)
	}
	if got := e.CountTokens(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("400 ascii chars = %d tokens, want 100", got)
	}
	if got := e.CountTokens("hi"); got != 1 {
		t.Errorf("tiny text = %d, want at least 1", got)
	}
	cjk := e.CountTokens(strings.Repeat("中", 30))
	if cjk != 20 {
		t.Errorf("30 CJK chars = %d tokens, want 20", cjk)
	}
}

func TestChunkTimeFormats(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []any{now, now.Format(time.RFC3339), now.Unix(), float64(now.Unix()), int(now.Unix())}
	for _, raw := range cases {
		ts, ok := chunkTime(types.Chunk{Metadata: map[string]any{"timestamp": raw}})
		if !ok || !ts.Equal(now) {
			t.Errorf("chunkTime(%T %v) = %v %v, want %v", raw, raw, ts, ok, now)
		}
	}
	if _, ok := chunkTime(types.Chunk{}); ok {
		t.Error("missing timestamp should report !ok")
	}
	if _, ok := chunkTime(types.Chunk{Metadata: map[string]any{"timestamp": "yesterday"}}); ok {
		t.Error("unparseable timestamp should report !ok")
	}
}

type initCounter struct {
	inits int
	err   error
}

func (c *initCounter) Init() error {
	c.inits++
	return c.err
}

func (c *initCounter) CountTokens(text string) int {
	return len(text) / 4
}

func TestAssemblerWarmUp(t *testing.T) {
	t.Parallel()

	// The default estimator has nothing to initialize.
	if err := NewAssembler(DefaultConfig(), nil).WarmUp(); err != nil {
		t.Fatalf("WarmUp with estimator: %v", err)
	}

	counter := &initCounter{}
	a := NewAssembler(DefaultConfig(), nil).WithTokenCounter(counter)
	if err := a.WarmUp(); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if counter.inits != 1 {
		t.Errorf("Init called %d times, want 1", counter.inits)
	}

	counter.err = errors.New("vocabulary download failed")
	if err := a.WarmUp(); err == nil {
		t.Error("WarmUp must surface the counter's init error")
	}
}
