package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("FEATURE_STORE_CACHE_TTL", "90m")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("LEDGER_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Minute, cfg.FeatureStoreCacheTTL)
	assert.False(t, cfg.RedisEnabled())
	assert.True(t, cfg.LedgerEnabled)
}

func TestLoadParamsAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feature_dir: /data/features
domains: [lab, vital]
cases:
  case_list: cases.csv
matrix:
  additional: [scores.csv]
`), 0o644))

	p, err := LoadParams(path, &Config{CacheDir: "/data/cache", FeatureDir: "./features"})
	require.NoError(t, err)
	assert.Equal(t, "/data/cache", p.CacheDir)
	assert.Equal(t, "/data/features", p.FeatureDir)
	assert.Equal(t, []string{"lab", "vital"}, p.Domains)
	assert.Equal(t, "cases.csv", p.Cases.CaseList)
	assert.Equal(t, []string{"scores.csv"}, p.Matrix.Additional)
	assert.Equal(t, "feature_matrix", p.Output.DuckDBTable)

	_, err = LoadParams(filepath.Join(dir, "missing.yaml"), nil)
	require.Error(t, err)
}

func TestRequireDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	require.NoError(t, RequireDir(dir, false))
	require.ErrorIs(t, RequireDir(file, false), ErrNotDirectory)
	require.Error(t, RequireDir(filepath.Join(dir, "nope"), false))
	require.NoError(t, RequireDir(filepath.Join(dir, "made"), true))
	require.Error(t, RequireDir("", true))

	require.NoError(t, RequireFile(file))
	require.Error(t, RequireFile(dir))
}
