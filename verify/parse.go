package verify

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/BaSui01/ragflow/types"
)

// defaultScore is assumed when a judge response yields no score at all.
// Neutral on a 0-10 scale, so an unparseable verdict neither promotes nor
// buries a candidate.
const defaultScore = 5

// verdict mirrors the JSON shape judges are prompted to return. Pointers
// distinguish absent fields from zero values.
type verdict struct {
	Verified  *bool    `json:"verified"`
	Score     *float64 `json:"score"`
	Reasoning string   `json:"reasoning"`
}

var (
	pointsPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:points?|/\s*10)`)
	scorePattern  = regexp.MustCompile(`(?i)score\s*[:=]?\s*(\d+(?:\.\d+)?)`)
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// parseVerdict turns a raw judge response into a decision. Strict JSON is
// tried first, then common free-text score phrasings, then a bare number
// anywhere in the text. Nothing parseable yields the neutral default.
func parseVerdict(raw string, threshold int) types.VerificationResult {
	trimmed := strings.TrimSpace(raw)
	trimmed = stripCodeFence(trimmed)

	if v, ok := parseJSONVerdict(trimmed); ok {
		return resolveVerdict(v, threshold)
	}
	if score, ok := extractScore(trimmed); ok {
		return scoreVerdict(score, trimmed, threshold)
	}
	return defaultVerdict(threshold)
}

// parseBatchVerdicts parses a JSON array response covering want documents.
// A response that is not a JSON array of exactly want verdicts is rejected
// as a whole; the caller decides the fallback.
func parseBatchVerdicts(raw string, want, threshold int) ([]types.VerificationResult, bool) {
	trimmed := stripCodeFence(strings.TrimSpace(raw))

	var items []verdict
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return nil, false
	}
	if len(items) != want {
		return nil, false
	}

	out := make([]types.VerificationResult, len(items))
	for i, v := range items {
		out[i] = resolveVerdict(v, threshold)
	}
	return out, true
}

func parseJSONVerdict(s string) (verdict, bool) {
	var v verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return verdict{}, false
	}
	if v.Verified == nil && v.Score == nil {
		return verdict{}, false
	}
	return v, true
}

func resolveVerdict(v verdict, threshold int) types.VerificationResult {
	score := defaultScore
	if v.Score != nil {
		score = clampScore(*v.Score)
	}

	verified := score >= threshold
	if v.Verified != nil {
		verified = *v.Verified
		if v.Score == nil {
			if verified {
				score = 10
			} else {
				score = 0
			}
		}
	}

	return types.VerificationResult{
		Verified:   verified,
		Score:      score,
		Confidence: float64(score) / 10,
		Reasoning:  v.Reasoning,
	}
}

func scoreVerdict(score float64, reasoning string, threshold int) types.VerificationResult {
	s := clampScore(score)
	return types.VerificationResult{
		Verified:   s >= threshold,
		Score:      s,
		Confidence: float64(s) / 10,
		Reasoning:  reasoning,
	}
}

func defaultVerdict(threshold int) types.VerificationResult {
	return types.VerificationResult{
		Verified:   defaultScore >= threshold,
		Score:      defaultScore,
		Confidence: float64(defaultScore) / 10,
		Reasoning:  reasonDefaulted,
	}
}

// extractScore pulls a numeric score out of free-form judge text.
func extractScore(s string) (float64, bool) {
	if m := pointsPattern.FindStringSubmatch(s); m != nil {
		return parseFloat(m[1])
	}
	if m := scorePattern.FindStringSubmatch(s); m != nil {
		return parseFloat(m[1])
	}
	if m := numberPattern.FindString(s); m != "" {
		return parseFloat(m)
	}
	return 0, false
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func clampScore(f float64) int {
	if f < 0 {
		return 0
	}
	if f > 10 {
		return 10
	}
	return int(f + 0.5)
}

// stripCodeFence unwraps ```json fenced blocks that chat models like to
// wrap structured output in.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
