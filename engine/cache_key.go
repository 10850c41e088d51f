package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// searchKey is the canonical identity of one search. Filters are flattened
// into a sorted slice because map iteration order would make the JSON
// encoding unstable.
type searchKey struct {
	Query   string       `json:"query"`
	TopK    int          `json:"top_k"`
	Filters []string     `json:"filters,omitempty"`
	Stages  StageToggles `json:"stages"`
}

// cacheKey derives a stable key for the result cache. Two searches that
// would run the identical pipeline over the identical query share a key.
func cacheKey(query string, topK int, filters map[string]string, stages StageToggles) string {
	key := searchKey{
		Query:  query,
		TopK:   topK,
		Stages: stages,
	}
	for k, v := range filters {
		key.Filters = append(key.Filters, k+"="+v)
	}
	sort.Strings(key.Filters)

	data, err := json.Marshal(key)
	if err != nil {
		// Marshal of the struct above cannot fail; keep a readable
		// fallback anyway.
		data = []byte(query)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
