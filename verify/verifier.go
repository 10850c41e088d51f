package verify

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/BaSui01/ragflow/types"
)

// JudgeFunc asks an LLM to rate the relevance of one document to the
// query. The raw text response is parsed by the verifier; judges are not
// expected to return well-formed output.
type JudgeFunc func(ctx context.Context, query, document string) (string, error)

// BatchJudgeFunc rates all ambiguous documents in a single call. The
// response should be a JSON array with one verdict per document, in order.
type BatchJudgeFunc func(ctx context.Context, query string, documents []string) (string, error)

// Reasoning strings attached to auto-decided candidates.
const (
	reasonSkipped   = "skipped: high retrieval confidence"
	reasonRejected  = "rejected: low retrieval confidence"
	reasonDefaulted = "defaulted: unparseable judge response"
)

// Config tunes the verification stage.
type Config struct {
	// SkipThreshold auto-verifies candidates at or above it.
	SkipThreshold float64 `yaml:"skip_threshold" json:"skip_threshold"`

	// FilterThreshold auto-rejects candidates at or below it.
	FilterThreshold float64 `yaml:"filter_threshold" json:"filter_threshold"`

	// VerificationThreshold is the minimum judge score (0-10) counted as
	// verified when the judge gives no explicit boolean.
	VerificationThreshold int `yaml:"verification_threshold" json:"verification_threshold"`

	// Concurrency caps simultaneously in-flight judge calls; excess
	// candidates queue.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// JudgeRateLimit, when > 0, caps judge calls per second as
	// backpressure against the provider's own rate limits.
	JudgeRateLimit float64 `yaml:"judge_rate_limit" json:"judge_rate_limit"`

	// BatchMode judges all ambiguous candidates in one call.
	BatchMode bool `yaml:"batch_mode" json:"batch_mode"`

	// DefaultConfidence is assumed for candidates that carry no
	// confidence score; the default of 0.5 routes them to judgment.
	DefaultConfidence float64 `yaml:"default_confidence" json:"default_confidence"`
}

// DefaultConfig returns the default verification configuration.
func DefaultConfig() Config {
	return Config{
		SkipThreshold:         0.8,
		FilterThreshold:       0.3,
		VerificationThreshold: 5,
		Concurrency:           3,
		DefaultConfidence:     0.5,
	}
}

// Verifier classifies each candidate as auto-accept, auto-reject, or
// needs-judgment, then resolves the judgment bucket through the judge
// function. Output order always matches input order.
type Verifier struct {
	config     Config
	judge      JudgeFunc
	batchJudge BatchJudgeFunc
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewVerifier creates a verifier around the per-item judge function.
func NewVerifier(config Config, judge JudgeFunc, logger *zap.Logger) (*Verifier, error) {
	if judge == nil {
		return nil, types.NewError(types.ErrConfigError, "judge function is required").
			WithStage(types.StageVerify)
	}
	return newVerifier(config, judge, nil, logger)
}

// NewBatchVerifier creates a verifier that resolves all ambiguous
// candidates with a single batch judge call.
func NewBatchVerifier(config Config, batchJudge BatchJudgeFunc, logger *zap.Logger) (*Verifier, error) {
	if batchJudge == nil {
		return nil, types.NewError(types.ErrConfigError, "batch judge function is required").
			WithStage(types.StageVerify)
	}
	config.BatchMode = true
	return newVerifier(config, nil, batchJudge, logger)
}

func newVerifier(config Config, judge JudgeFunc, batchJudge BatchJudgeFunc, logger *zap.Logger) (*Verifier, error) {
	defaults := DefaultConfig()
	if config.SkipThreshold == 0 {
		config.SkipThreshold = defaults.SkipThreshold
	}
	if config.FilterThreshold == 0 {
		config.FilterThreshold = defaults.FilterThreshold
	}
	if config.FilterThreshold >= config.SkipThreshold {
		return nil, types.NewError(types.ErrConfigError, "filter threshold must be below skip threshold").
			WithStage(types.StageVerify)
	}
	if config.VerificationThreshold <= 0 {
		config.VerificationThreshold = defaults.VerificationThreshold
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.DefaultConfidence == 0 {
		config.DefaultConfidence = defaults.DefaultConfidence
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v := &Verifier{
		config:     config,
		judge:      judge,
		batchJudge: batchJudge,
		logger:     logger.With(zap.String("component", "verifier")),
	}
	if config.JudgeRateLimit > 0 {
		v.limiter = rate.NewLimiter(rate.Limit(config.JudgeRateLimit), 1)
	}
	return v, nil
}

// Verify resolves a verification decision for every candidate. Judge
// transport errors abort the whole stage: silently treating "couldn't
// verify" as "verified" would be a correctness hazard.
func (v *Verifier) Verify(ctx context.Context, query string, results []types.RetrievalResult) ([]types.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidQuery, "query is empty").
			WithStage(types.StageVerify)
	}
	if len(results) == 0 {
		return []types.RetrievalResult{}, nil
	}

	out := make([]types.RetrievalResult, len(results))
	copy(out, results)

	var pending []int
	for i := range out {
		confidence := v.config.DefaultConfidence
		if out[i].Confidence != nil {
			confidence = out[i].Confidence.Overall
		}

		switch {
		case confidence >= v.config.SkipThreshold:
			out[i].Verification = &types.VerificationResult{
				Verified:   true,
				Score:      10,
				Confidence: confidence,
				Reasoning:  reasonSkipped,
			}
		case confidence <= v.config.FilterThreshold:
			out[i].Verification = &types.VerificationResult{
				Verified:   false,
				Score:      0,
				Confidence: confidence,
				Reasoning:  reasonRejected,
			}
		default:
			pending = append(pending, i)
		}
	}

	if len(pending) == 0 {
		return out, nil
	}

	v.logger.Debug("dispatching judge calls",
		zap.Int("candidates", len(results)),
		zap.Int("pending", len(pending)),
		zap.Bool("batch", v.config.BatchMode))

	var err error
	if v.config.BatchMode {
		err = v.judgeBatch(ctx, query, out, pending)
	} else {
		err = v.judgeEach(ctx, query, out, pending)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// judgeEach resolves pending candidates with one judge call per item,
// bounded by the configured concurrency. Results land at their original
// indices, so completion order never reorders the output.
func (v *Verifier) judgeEach(ctx context.Context, query string, out []types.RetrievalResult, pending []int) error {
	sem := semaphore.NewWeighted(int64(v.config.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for _, idx := range pending {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			raw, err := v.callJudge(gctx, query, out[idx].Chunk.Content)
			if err != nil {
				return err
			}
			verdict := parseVerdict(raw, v.config.VerificationThreshold)
			out[idx].Verification = &verdict
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return v.wrapJudgeError(ctx, err)
	}
	return nil
}

// judgeBatch resolves all pending candidates with a single judge call. A
// malformed batch response falls back to the per-item default verdict for
// every candidate in the batch instead of failing the search.
func (v *Verifier) judgeBatch(ctx context.Context, query string, out []types.RetrievalResult, pending []int) error {
	documents := make([]string, len(pending))
	for i, idx := range pending {
		documents[i] = out[idx].Chunk.Content
	}

	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return v.wrapJudgeError(ctx, err)
		}
	}
	raw, err := v.batchJudge(ctx, query, documents)
	if err != nil {
		return v.wrapJudgeError(ctx, err)
	}

	verdicts, ok := parseBatchVerdicts(raw, len(pending), v.config.VerificationThreshold)
	if !ok {
		v.logger.Warn("malformed batch judge response, defaulting all candidates",
			zap.Int("candidates", len(pending)))
		for _, idx := range pending {
			verdict := defaultVerdict(v.config.VerificationThreshold)
			out[idx].Verification = &verdict
		}
		return nil
	}
	for i, idx := range pending {
		out[idx].Verification = &verdicts[i]
	}
	return nil
}

func (v *Verifier) callJudge(ctx context.Context, query, document string) (string, error) {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return v.judge(ctx, query, document)
}

func (v *Verifier) wrapJudgeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return types.NewError(types.ErrAborted, "verification canceled").
			WithStage(types.StageVerify).WithCause(err)
	}
	return types.NewError(types.ErrVerificationFailed, "judge call failed").
		WithStage(types.StageVerify).WithCause(err)
}

// Outcome counts how a batch of verified results was resolved.
type Outcome struct {
	Skipped  int // auto-verified on high retrieval confidence, no judge call
	Rejected int // auto-rejected on low retrieval confidence, no judge call
	Judged   int // resolved by the LLM judge (including defaulted verdicts)
}

// Tally classifies verified results by how their verdict was produced.
// Results without a verification record are ignored.
func Tally(results []types.RetrievalResult) Outcome {
	var o Outcome
	for _, r := range results {
		if r.Verification == nil {
			continue
		}
		switch r.Verification.Reasoning {
		case reasonSkipped:
			o.Skipped++
		case reasonRejected:
			o.Rejected++
		default:
			o.Judged++
		}
	}
	return o
}
