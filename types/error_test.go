package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	base := errors.New("connection refused")
	err := NewError(ErrStoreUnavailable, "vector store unreachable").
		WithStage(StageRetrieve).
		WithCause(base)

	want := "[STORE_UNAVAILABLE] retrieve: vector store unreachable: connection refused"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to find the cause")
	}
}

func TestGetErrorCodeUnwraps(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrRateLimit, "429 from provider")
	wrapped := fmt.Errorf("judge call: %w", inner)

	if got := GetErrorCode(wrapped); got != ErrRateLimit {
		t.Fatalf("GetErrorCode = %q, want %q", got, ErrRateLimit)
	}
	if got := GetErrorCode(errors.New("plain")); got != "" {
		t.Fatalf("GetErrorCode on plain error = %q, want empty", got)
	}
}

func TestIsCodeWalksCauseChain(t *testing.T) {
	t.Parallel()

	cause := NewError(ErrEmbeddingFailed, "model unavailable")
	outer := NewError(ErrRetrievalFailed, "dense retrieval failed").
		WithStage(StageRetrieve).
		WithCause(cause)

	if !IsCode(outer, ErrRetrievalFailed) {
		t.Fatal("expected outer code to match")
	}
	if !IsCode(outer, ErrEmbeddingFailed) {
		t.Fatal("expected inner code to match through the chain")
	}
	if IsCode(outer, ErrCacheError) {
		t.Fatal("unexpected match for unrelated code")
	}
	if got := GetStage(outer); got != StageRetrieve {
		t.Fatalf("GetStage = %q, want %q", got, StageRetrieve)
	}
}
