package retrieval

import (
	"context"
	"testing"

	"github.com/BaSui01/ragflow/types"
)

func testCorpus() []types.Chunk {
	return []types.Chunk{
		{ID: "reset", Content: "To reset your password open account settings and choose reset password"},
		{ID: "billing", Content: "Billing invoices are emailed at the start of every month"},
		{ID: "login", Content: "If you cannot log in check your password and username"},
	}
}

func TestSparseRetriever_RanksByTermRelevance(t *testing.T) {
	t.Parallel()

	r := NewSparseRetriever(DefaultSparseConfig(), nil)
	r.Index(testCorpus())

	list, err := r.Retrieve(context.Background(), "reset password", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(list.Entries) == 0 {
		t.Fatal("expected matches")
	}
	if list.Entries[0].ID != "reset" {
		t.Fatalf("expected reset to rank first, got %s", list.Entries[0].ID)
	}
	if list.Signal != SignalSparse {
		t.Fatalf("signal = %q, want %q", list.Signal, SignalSparse)
	}
	for i, entry := range list.Entries {
		if entry.Rank != i+1 {
			t.Fatalf("rank at %d = %d, want %d", i, entry.Rank, i+1)
		}
	}
}

func TestSparseRetriever_NonMatchingDocsExcluded(t *testing.T) {
	t.Parallel()

	r := NewSparseRetriever(DefaultSparseConfig(), nil)
	r.Index(testCorpus())

	list, err := r.Retrieve(context.Background(), "invoices", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(list.Entries) != 1 || list.Entries[0].ID != "billing" {
		t.Fatalf("expected only billing, got %+v", list.Entries)
	}
}

func TestSparseRetriever_TopKLimit(t *testing.T) {
	t.Parallel()

	r := NewSparseRetriever(DefaultSparseConfig(), nil)
	r.Index(testCorpus())

	list, err := r.Retrieve(context.Background(), "password", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(list.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list.Entries))
	}
}

func TestSparseRetriever_ErrorsWithoutIndex(t *testing.T) {
	t.Parallel()

	r := NewSparseRetriever(DefaultSparseConfig(), nil)

	_, err := r.Retrieve(context.Background(), "anything", 10)
	if got := types.GetErrorCode(err); got != types.ErrIndexNotBuilt {
		t.Fatalf("error code = %q, want INDEX_NOT_BUILT", got)
	}
}

func TestSparseRetriever_EmptyQuery(t *testing.T) {
	t.Parallel()

	r := NewSparseRetriever(DefaultSparseConfig(), nil)
	r.Index(testCorpus())

	_, err := r.Retrieve(context.Background(), "   ", 10)
	if got := types.GetErrorCode(err); got != types.ErrInvalidQuery {
		t.Fatalf("error code = %q, want INVALID_QUERY", got)
	}
}

func TestSparseRetriever_GetChunks(t *testing.T) {
	t.Parallel()

	r := NewSparseRetriever(DefaultSparseConfig(), nil)
	r.Index(testCorpus())

	chunks, err := r.GetChunks(context.Background(), []string{"reset", "missing"})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if _, ok := chunks["reset"]; !ok {
		t.Fatal("expected reset chunk")
	}
}
