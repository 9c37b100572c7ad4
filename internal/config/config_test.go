package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 1, cfg.DocProximity)
	assert.Equal(t, 5, cfg.Complexity.LowMax)
	assert.Equal(t, 15, cfg.Complexity.MediumMax)
	assert.Equal(t, 30, cfg.Complexity.HighMax)
	assert.True(t, cfg.ParallelEnabled())
}

func TestLoad_OverlaysOnDefaults(t *testing.T) {
	path := writeConfig(t, `
exclude:
  - "**_test.py"
  - vendor
languages: [go, python]
doc_proximity: 3
cache_path: .codeatlas/cache.db
parallel: false
complexity:
  low_max: 3
  medium_max: 10
  high_max: 20
  nested_weight: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"**_test.py", "vendor"}, cfg.Exclude)
	assert.Equal(t, []string{"go", "python"}, cfg.Languages)
	assert.Equal(t, 3, cfg.DocProximity)
	assert.Equal(t, ".codeatlas/cache.db", cfg.CachePath)
	assert.False(t, cfg.ParallelEnabled())
	assert.Equal(t, 3, cfg.Complexity.LowMax)
	assert.Equal(t, 1, cfg.Complexity.NestedWeight)
}

func TestLoad_PartialConfigKeepsRemainingDefaults(t *testing.T) {
	path := writeConfig(t, "doc_proximity: 2\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.DocProximity)
	assert.Equal(t, 5, cfg.Complexity.LowMax)
	assert.True(t, cfg.ParallelEnabled())
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "exclude: [unclosed\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsNonIncreasingThresholds(t *testing.T) {
	path := writeConfig(t, `
complexity:
  low_max: 10
  medium_max: 5
  high_max: 30
  nested_weight: 2
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsNegativeDocProximity(t *testing.T) {
	path := writeConfig(t, "doc_proximity: -1\n")
	_, err := Load(path)
	require.Error(t, err)
}
