package cache

import (
	"context"
	"time"
)

// Provider is the cache contract shared by every pipeline stage that
// memoizes expensive calls. The context is only observed by providers that
// talk to a remote backend; in-process providers ignore it.
type Provider[V any] interface {
	// Get returns the cached value for key, or ok=false on a miss.
	// An expired entry counts as a miss and is removed.
	Get(ctx context.Context, key string) (V, bool)

	// Set stores value under key. A ttl of 0 uses the provider default;
	// a negative ttl stores the entry without expiry.
	Set(ctx context.Context, key string, value V, ttl time.Duration)

	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) bool

	// Has reports whether key is present and unexpired. It does not
	// promote the entry, evict it, or count toward hit/miss stats.
	Has(ctx context.Context, key string) bool

	// Clear removes all entries.
	Clear(ctx context.Context)

	// Size returns the number of stored entries.
	Size(ctx context.Context) int

	// Stats returns lifetime hit/miss counters.
	Stats() Stats
}

// Stats holds cache hit/miss counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// HitRate returns hits/(hits+misses), or 0 before any access.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config configures an in-process LRU cache.
type Config struct {
	// MaxSize is the maximum number of entries before LRU eviction.
	MaxSize int `yaml:"max_size" json:"max_size"`

	// MaxMemoryBytes, when > 0 together with an estimator, switches the
	// capacity check from entry count to estimated bytes.
	MaxMemoryBytes int64 `yaml:"max_memory_bytes" json:"max_memory_bytes"`

	// DefaultTTL applies to Set calls with ttl == 0. Zero means no expiry.
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
}

// DefaultConfig returns the default LRU configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:    1000,
		DefaultTTL: 5 * time.Minute,
	}
}
