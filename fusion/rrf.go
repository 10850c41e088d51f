package fusion

import (
	"math"
	"sort"
	"strconv"
)

// DefaultK is the default RRF constant. A larger k flattens the influence
// of top ranks, a smaller k sharpens it.
const DefaultK = 60

// RankedEntry is one position in a RankingList. Rank is 1-based.
type RankedEntry struct {
	ID    string  `json:"id"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// RankingList is the ordered output of a single retrieval signal. It is
// read-only after creation.
type RankingList struct {
	Signal  string        `json:"signal"`
	Entries []RankedEntry `json:"entries"`
}

// FusedItem is one id in the fused output, with its contribution per input
// list recorded for confidence derivation.
type FusedItem struct {
	ID    string         `json:"id"`
	Score float64        `json:"fused_score"`
	Ranks map[string]int `json:"per_list_ranks"`
}

// RankByScore builds a RankingList from a score map, ordered by score
// descending with ties broken by id for determinism.
func RankByScore(signal string, scores map[string]float64) RankingList {
	entries := make([]RankedEntry, 0, len(scores))
	for id, score := range scores {
		entries = append(entries, RankedEntry{ID: id, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ID < entries[j].ID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return RankingList{Signal: signal, Entries: entries}
}

// Fuse combines two or more ranking lists with Reciprocal Rank Fusion:
// each id scores the sum over lists containing it of 1/(k+rank). Ids absent
// from a list contribute nothing for that list. k <= 0 uses DefaultK.
//
// Output order is fused score descending; ties break by the id's best
// (lowest) rank in any single list, then by id. The result is deterministic
// and independent of input list order.
func Fuse(lists []RankingList, k int) []FusedItem {
	if k <= 0 {
		k = DefaultK
	}
	if len(lists) == 0 {
		return []FusedItem{}
	}

	items := make(map[string]*FusedItem)
	seen := make(map[string]int, len(lists))
	for _, list := range lists {
		// A repeated signal name would overwrite the previous list's rank
		// entry; suffix duplicates so every list keeps its own key.
		signal := list.Signal
		if n := seen[list.Signal]; n > 0 {
			signal = list.Signal + "#" + strconv.Itoa(n)
		}
		seen[list.Signal]++

		for _, entry := range list.Entries {
			item, ok := items[entry.ID]
			if !ok {
				item = &FusedItem{ID: entry.ID, Ranks: make(map[string]int, len(lists))}
				items[entry.ID] = item
			}
			item.Score += 1.0 / float64(k+entry.Rank)
			item.Ranks[signal] = entry.Rank
		}
	}

	fused := make([]FusedItem, 0, len(items))
	for _, item := range items {
		fused = append(fused, *item)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		bi, bj := bestRank(fused[i]), bestRank(fused[j])
		if bi != bj {
			return bi < bj
		}
		return fused[i].ID < fused[j].ID
	})
	return fused
}

// bestRank returns the lowest rank the item holds in any single list.
func bestRank(item FusedItem) int {
	best := math.MaxInt
	for _, rank := range item.Ranks {
		if rank < best {
			best = rank
		}
	}
	return best
}

// NormalizeScores min-max normalizes a score map into [0,1]. When all
// scores are equal every id maps to 1.0.
func NormalizeScores(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}

	minScore := math.MaxFloat64
	maxScore := -math.MaxFloat64
	for _, score := range scores {
		if score < minScore {
			minScore = score
		}
		if score > maxScore {
			maxScore = score
		}
	}

	normalized := make(map[string]float64, len(scores))
	scoreRange := maxScore - minScore
	if scoreRange == 0 {
		for id := range scores {
			normalized[id] = 1.0
		}
		return normalized
	}
	for id, score := range scores {
		normalized[id] = (score - minScore) / scoreRange
	}
	return normalized
}

// ApplyWeight multiplies every score by weight, returning a new map. Rank
// positions within the list are unchanged; the weighted scores feed score
// blending and confidence signals downstream.
func ApplyWeight(scores map[string]float64, weight float64) map[string]float64 {
	weighted := make(map[string]float64, len(scores))
	for id, score := range scores {
		weighted[id] = score * weight
	}
	return weighted
}
