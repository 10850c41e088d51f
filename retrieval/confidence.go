package retrieval

import (
	"math"

	"github.com/BaSui01/ragflow/fusion"
	"github.com/BaSui01/ragflow/types"
)

// Factor weights for the overall confidence blend. Rank agreement dominates
// because it is the strongest retrieval-only relevance signal.
const (
	weightRankAgreement    = 0.4
	weightScoreConsistency = 0.2
	weightSignalCount      = 0.2
	weightMultiSignal      = 0.2
)

// computeConfidence derives a confidence score for one fused candidate from
// its retrieval signals alone. Overall is monotonic in rank agreement and
// in the number of signals the candidate appears in.
func computeConfidence(item fusion.FusedItem, signalScores map[string]map[string]float64, totalSignals, longestList int) *types.ConfidenceScore {
	factors := types.ConfidenceFactors{
		RankAgreement:    rankAgreement(item.Ranks, longestList),
		ScoreConsistency: scoreConsistency(item.ID, item.Ranks, signalScores),
	}
	if totalSignals > 0 {
		factors.SignalCount = float64(len(item.Ranks)) / float64(totalSignals)
	}
	if len(item.Ranks) >= 2 {
		factors.MultiSignalPresence = 1.0
	}

	overall := weightRankAgreement*factors.RankAgreement +
		weightScoreConsistency*factors.ScoreConsistency +
		weightSignalCount*factors.SignalCount +
		weightMultiSignal*factors.MultiSignalPresence

	signals := make(map[string]float64, len(item.Ranks))
	for signal := range item.Ranks {
		if scores, ok := signalScores[signal]; ok {
			signals[signal] = scores[item.ID]
		}
	}

	return &types.ConfidenceScore{
		Overall: clamp01(overall),
		Signals: signals,
		Factors: factors,
	}
}

// rankAgreement maps the spread between a candidate's per-signal ranks into
// [0,1]: identical ranks in every signal give 1, opposite ends of the
// longest list give 0. A single signal is neutral (0.5).
func rankAgreement(ranks map[string]int, longestList int) float64 {
	if len(ranks) < 2 {
		return 0.5
	}
	lowest, highest := math.MaxInt, 0
	for _, rank := range ranks {
		if rank < lowest {
			lowest = rank
		}
		if rank > highest {
			highest = rank
		}
	}
	if longestList <= 1 {
		return 1.0
	}
	spread := float64(highest-lowest) / float64(longestList-1)
	return clamp01(1.0 - spread)
}

// scoreConsistency measures how closely the candidate's normalized scores
// agree across signals. A single signal is neutral (0.5).
func scoreConsistency(id string, ranks map[string]int, signalScores map[string]map[string]float64) float64 {
	if len(ranks) < 2 {
		return 0.5
	}
	lowest, highest := math.MaxFloat64, -math.MaxFloat64
	seen := 0
	for signal := range ranks {
		scores, ok := signalScores[signal]
		if !ok {
			continue
		}
		score := scores[id]
		if score < lowest {
			lowest = score
		}
		if score > highest {
			highest = score
		}
		seen++
	}
	if seen < 2 {
		return 0.5
	}
	return clamp01(1.0 - (highest - lowest))
}

func clamp01(v float64) float64 {
	return math.Min(1.0, math.Max(0.0, v))
}
