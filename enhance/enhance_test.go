package enhance

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/ragflow/types"
)

func TestLLMEnhancerRewrites(t *testing.T) {
	t.Parallel()

	e, err := NewLLMEnhancer(func(ctx context.Context, prompt string) (string, error) {
		return "password reset account recovery forgotten credentials\nextra commentary", nil
	}, nil)
	if err != nil {
		t.Fatalf("NewLLMEnhancer: %v", err)
	}

	got, err := e.Enhance(context.Background(), "i forgot my password")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if got != "password reset account recovery forgotten credentials" {
		t.Errorf("got %q, want first line of the completion", got)
	}
}

func TestLLMEnhancerEmptyRewriteKeepsOriginal(t *testing.T) {
	t.Parallel()

	e, err := NewLLMEnhancer(func(ctx context.Context, prompt string) (string, error) {
		return "   \n", nil
	}, nil)
	if err != nil {
		t.Fatalf("NewLLMEnhancer: %v", err)
	}

	got, err := e.Enhance(context.Background(), "billing question")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if got != "billing question" {
		t.Errorf("got %q, want the original query", got)
	}
}

func TestLLMEnhancerFailureCode(t *testing.T) {
	t.Parallel()

	e, err := NewLLMEnhancer(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model offline")
	}, nil)
	if err != nil {
		t.Fatalf("NewLLMEnhancer: %v", err)
	}

	_, err = e.Enhance(context.Background(), "anything")
	if !types.IsCode(err, types.ErrEnhancementFailed) {
		t.Fatalf("got %v, want ENHANCEMENT_FAILED", err)
	}
	if types.GetStage(err) != types.StageEnhance {
		t.Errorf("stage = %q, want enhance", types.GetStage(err))
	}
}

func TestLLMEnhancerEmptyQuery(t *testing.T) {
	t.Parallel()

	e, err := NewLLMEnhancer(func(ctx context.Context, prompt string) (string, error) {
		return "anything", nil
	}, nil)
	if err != nil {
		t.Fatalf("NewLLMEnhancer: %v", err)
	}

	if _, err := e.Enhance(context.Background(), "  "); !types.IsCode(err, types.ErrInvalidQuery) {
		t.Fatalf("got %v, want INVALID_QUERY", err)
	}
}

func TestLLMEnhancerRequiresCompletion(t *testing.T) {
	t.Parallel()

	if _, err := NewLLMEnhancer(nil, nil); !types.IsCode(err, types.ErrConfigError) {
		t.Fatalf("got %v, want CONFIG_ERROR", err)
	}
}

func TestKeywordEnhancer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "strips scaffolding",
			query: "How do I reset my password?",
			want:  "reset password",
		},
		{
			name:  "lowercases and trims punctuation",
			query: "What is the Billing Cycle?!",
			want:  "billing cycle",
		},
		{
			name:  "all stopwords keeps original",
			query: "what is it",
			want:  "what is it",
		},
		{
			name:  "already terse",
			query: "kubernetes pod eviction",
			want:  "kubernetes pod eviction",
		},
	}

	e := NewKeywordEnhancer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := e.Enhance(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Enhance: %v", err)
			}
			if got != tt.want {
				t.Errorf("Enhance(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}

	if _, err := e.Enhance(context.Background(), ""); !types.IsCode(err, types.ErrInvalidQuery) {
		t.Fatalf("empty query should fail with INVALID_QUERY, got %v", err)
	}
}
