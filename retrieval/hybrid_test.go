package retrieval

import (
	"context"
	"testing"

	"github.com/BaSui01/ragflow/types"
)

// hybridFixture builds a hybrid retriever over three documents where the
// dense ranking is [A, B, C] and the sparse ranking is [B, A, C]. With RRF
// both A and B score 1/61+1/62 and both hold a rank-1 spot, so the tie
// resolves by id: A first.
func hybridFixture(t *testing.T) *HybridRetriever {
	t.Helper()

	chunks := []types.Chunk{
		{ID: "doc-a", Content: "reset password instructions for your account settings password reset"},
		{ID: "doc-b", Content: "how to reset a forgotten password"},
		{ID: "doc-c", Content: "unrelated shipping information"},
	}
	vectors := map[string][]float64{
		"doc-a": {1, 0},
		"doc-b": {0.8, 0.6},
		"doc-c": {0, 1},
	}

	store := NewMemoryVectorStore(nil)
	for _, chunk := range chunks {
		if err := store.Add(chunk, vectors[chunk.ID]); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	embed := func(ctx context.Context, text string) ([]float64, error) {
		return []float64{1, 0}, nil
	}
	dense := NewDenseRetriever(embed, store, nil, nil)

	sparse := NewSparseRetriever(DefaultSparseConfig(), nil)
	// doc-b is the strongest BM25 match for "forgotten password": it is
	// short and contains both query terms.
	sparse.Index(chunks)

	cfg := DefaultHybridConfig()
	cfg.TopK = 3
	return NewHybridRetriever(cfg, dense, sparse, store, nil)
}

func TestHybridRetriever_FusedOrdering(t *testing.T) {
	t.Parallel()

	r := hybridFixture(t)
	results, err := r.Retrieve(context.Background(), "forgotten password", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("expected at least 2 results, got %d", len(results))
	}

	// Dense ranks doc-a first, sparse ranks doc-b first; the RRF tie
	// between them breaks by id, so doc-a leads.
	if results[0].ID != "doc-a" || results[1].ID != "doc-b" {
		t.Fatalf("order = [%s, %s], want [doc-a, doc-b]", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[len(results)-1].Score {
		t.Fatal("results not ordered by fused score descending")
	}
}

func TestHybridRetriever_Deterministic(t *testing.T) {
	t.Parallel()

	r := hybridFixture(t)
	first, err := r.Retrieve(context.Background(), "forgotten password", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Retrieve(context.Background(), "forgotten password", nil)
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: length %d != %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].ID != first[j].ID {
				t.Fatalf("run %d: order differs at %d: %s vs %s", i, j, again[j].ID, first[j].ID)
			}
		}
	}
}

func TestHybridRetriever_ConfidenceAttached(t *testing.T) {
	t.Parallel()

	r := hybridFixture(t)
	results, err := r.Retrieve(context.Background(), "forgotten password", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	for _, result := range results {
		if result.Confidence == nil {
			t.Fatalf("result %s missing confidence", result.ID)
		}
		if result.Confidence.Overall < 0 || result.Confidence.Overall > 1 {
			t.Fatalf("confidence %f out of range", result.Confidence.Overall)
		}
	}

	// Candidates found by both signals must outrank single-signal presence
	// in the signal-count factor.
	top := results[0].Confidence
	if top.Factors.MultiSignalPresence != 1.0 {
		t.Fatalf("top candidate should be present in both signals, factors: %+v", top.Factors)
	}
}

func TestHybridRetriever_EmptyQuery(t *testing.T) {
	t.Parallel()

	r := hybridFixture(t)
	_, err := r.Retrieve(context.Background(), "", nil)
	if got := types.GetErrorCode(err); got != types.ErrInvalidQuery {
		t.Fatalf("error code = %q, want INVALID_QUERY", got)
	}
}

func TestHybridRetriever_NoSignalsConfigured(t *testing.T) {
	t.Parallel()

	cfg := DefaultHybridConfig()
	cfg.UseDense = false
	cfg.UseSparse = false
	r := NewHybridRetriever(cfg, nil, nil, NewMemoryVectorStore(nil), nil)

	_, err := r.Retrieve(context.Background(), "query", nil)
	if got := types.GetErrorCode(err); got != types.ErrConfigError {
		t.Fatalf("error code = %q, want CONFIG_ERROR", got)
	}
}

func TestHybridRetriever_SparseOnly(t *testing.T) {
	t.Parallel()

	chunks := testCorpus()
	sparse := NewSparseRetriever(DefaultSparseConfig(), nil)
	sparse.Index(chunks)

	cfg := DefaultHybridConfig()
	cfg.UseDense = false
	r := NewHybridRetriever(cfg, nil, sparse, sparse, nil)

	results, err := r.Retrieve(context.Background(), "reset password", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) == 0 || results[0].ID != "reset" {
		t.Fatalf("results = %+v, want reset first", results)
	}
	// Single-signal candidates carry neutral rank agreement.
	if got := results[0].Confidence.Factors.RankAgreement; got != 0.5 {
		t.Fatalf("single-signal rank agreement = %f, want 0.5", got)
	}
}

func TestHybridRetriever_ErrorPropagatesFromSignal(t *testing.T) {
	t.Parallel()

	embed := func(ctx context.Context, text string) ([]float64, error) {
		return []float64{1, 0}, nil
	}
	dense := NewDenseRetriever(embed, failingStore{}, nil, nil)
	sparse := NewSparseRetriever(DefaultSparseConfig(), nil)
	sparse.Index(testCorpus())

	r := NewHybridRetriever(DefaultHybridConfig(), dense, sparse, sparse, nil)
	_, err := r.Retrieve(context.Background(), "reset password", nil)
	if got := types.GetErrorCode(err); got != types.ErrStoreError {
		t.Fatalf("error code = %q, want STORE_ERROR (never silently empty)", got)
	}
}

func TestHybridRetriever_MinScoreFilters(t *testing.T) {
	t.Parallel()

	chunks := testCorpus()
	sparse := NewSparseRetriever(DefaultSparseConfig(), nil)
	sparse.Index(chunks)

	cfg := DefaultHybridConfig()
	cfg.UseDense = false
	cfg.SparseWeight = 1.0
	cfg.MinScore = 0.9
	r := NewHybridRetriever(cfg, nil, sparse, sparse, nil)

	results, err := r.Retrieve(context.Background(), "reset password", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// Only the top normalized match survives a 0.9 cutoff.
	for _, result := range results {
		if result.ID == "billing" {
			t.Fatal("low-scoring candidate not filtered")
		}
	}
	if len(results) == 0 {
		t.Fatal("expected the top candidate to survive the cutoff")
	}
}
