package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/types"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ragflow.yaml")
	data := []byte(`
stages:
  enhance: true
  rerank: true
  verify: true
retrieval:
  top_k: 8
  use_dense: true
  use_sparse: true
  dense_weight: 0.6
  sparse_weight: 0.4
verify:
  skip_threshold: 0.85
  concurrency: 5
assemble:
  max_tokens: 2000
  ordering: sandwich
stage_timeout: 10s
cache_results: true
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, config.Stages.Enhance)
	assert.Equal(t, 8, config.Retrieval.TopK)
	assert.InDelta(t, 0.6, config.Retrieval.DenseWeight, 1e-9)
	assert.InDelta(t, 0.85, config.Verify.SkipThreshold, 1e-9)
	assert.Equal(t, 5, config.Verify.Concurrency)
	assert.Equal(t, 2000, config.Assemble.MaxTokens)
	assert.Equal(t, 10*time.Second, config.StageTimeout)

	// Fields absent from the file keep their defaults.
	assert.InDelta(t, DefaultConfig().Verify.FilterThreshold, config.Verify.FilterThreshold, 1e-9)
	assert.Equal(t, DefaultConfig().Cache.MaxSize, config.Cache.MaxSize)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, types.IsCode(err, types.ErrConfigError))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("stages: [not, a, mapping]"), 0o644))
	_, err = LoadConfig(bad)
	assert.True(t, types.IsCode(err, types.ErrConfigError))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := DefaultConfig()
	assert.NoError(t, valid.Validate())

	negative := DefaultConfig()
	negative.StageTimeout = -time.Second
	assert.True(t, types.IsCode(negative.Validate(), types.ErrConfigError))

	inverted := DefaultConfig()
	inverted.Verify.SkipThreshold = 0.2
	inverted.Verify.FilterThreshold = 0.7
	assert.True(t, types.IsCode(inverted.Validate(), types.ErrConfigError))
}
