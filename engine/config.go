package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/ragflow/assemble"
	"github.com/BaSui01/ragflow/cache"
	"github.com/BaSui01/ragflow/rerank"
	"github.com/BaSui01/ragflow/retrieval"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/verify"
)

// StageToggles switches optional pipeline stages. Retrieval and assembly
// always run.
type StageToggles struct {
	Enhance bool `yaml:"enhance" json:"enhance"`
	Rerank  bool `yaml:"rerank" json:"rerank"`
	Verify  bool `yaml:"verify" json:"verify"`
}

// Config is the complete engine configuration.
type Config struct {
	Stages StageToggles `yaml:"stages" json:"stages"`

	Retrieval retrieval.HybridConfig `yaml:"retrieval" json:"retrieval"`
	Rerank    rerank.Config          `yaml:"rerank" json:"rerank"`
	Verify    verify.Config          `yaml:"verify" json:"verify"`
	Assemble  assemble.Config        `yaml:"assemble" json:"assemble"`
	Cache     cache.Config           `yaml:"cache" json:"cache"`

	// StageTimeout bounds each stage individually. Zero means no
	// per-stage bound beyond the caller's context.
	StageTimeout time.Duration `yaml:"stage_timeout" json:"stage_timeout"`

	// CacheResults toggles the whole-search result cache.
	CacheResults bool `yaml:"cache_results" json:"cache_results"`

	// IncludeResults keeps per-chunk results on the returned RAGResult.
	// Disable to slim responses down to the assembled context.
	IncludeResults bool `yaml:"include_results" json:"include_results"`
}

// DefaultConfig returns a configuration with every stage enabled except
// enhancement.
func DefaultConfig() Config {
	return Config{
		Stages: StageToggles{
			Rerank: true,
			Verify: true,
		},
		Retrieval:      retrieval.DefaultHybridConfig(),
		Rerank:         rerank.DefaultConfig(),
		Verify:         verify.DefaultConfig(),
		Assemble:       assemble.DefaultConfig(),
		Cache:          cache.DefaultConfig(),
		CacheResults:   true,
		IncludeResults: true,
	}
}

// Validate checks cross-field consistency the stage constructors cannot
// see.
func (c Config) Validate() error {
	if c.Retrieval.TopK <= 0 {
		return types.NewError(types.ErrConfigError, "retrieval top_k must be positive")
	}
	if c.Assemble.MaxTokens <= 0 {
		return types.NewError(types.ErrConfigError, "assemble max_tokens must be positive")
	}
	if c.StageTimeout < 0 {
		return types.NewError(types.ErrConfigError, "stage_timeout must not be negative")
	}
	if c.Verify.FilterThreshold >= c.Verify.SkipThreshold && c.Stages.Verify {
		return types.NewError(types.ErrConfigError, "verify filter threshold must be below skip threshold")
	}
	return nil
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, types.NewError(types.ErrConfigError,
			fmt.Sprintf("read config %s", path)).WithCause(err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, types.NewError(types.ErrConfigError,
			fmt.Sprintf("parse config %s", path)).WithCause(err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}
