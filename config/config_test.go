package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ETF_CONFIG_FILE", "")
	t.Setenv("ETF_FAMILIES", "")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "data/daily", c.SourceDir)
	assert.Equal(t, 8, c.Workers)
	assert.Equal(t, int32(8), c.Precision)
	assert.Equal(t, 30*24*time.Hour, c.FreshnessTolerance)
	assert.Equal(t, 0.95, c.MinSuccessRatio)
	assert.Equal(t, "xshg", c.MIC)
	assert.Len(t, c.FamilySpecs, 13)
	require.Len(t, c.Tiers, 2)
	assert.Equal(t, 3000.0, c.Tiers[0].MinTurnover)
}

func TestLoad_EnvironmentAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
families:
  - name: SMA
    periods: [5, 10]
  - name: boll
    params:
      k: 2.5
tiers:
  - name: 1亿门槛
    min_turnover: 10000
`), 0o644))

	t.Setenv("ETF_CONFIG_FILE", path)
	t.Setenv("ETF_WORKERS", "3")
	t.Setenv("ETF_FORMAT", "parquet")
	t.Setenv("ETF_FRESHNESS_TOLERANCE", "48h")
	t.Setenv("ETF_FAMILIES", "")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, c.Workers)
	assert.Equal(t, "parquet", c.Format)
	assert.Equal(t, 48*time.Hour, c.FreshnessTolerance)
	require.Len(t, c.FamilySpecs, 2)
	assert.Equal(t, []int{5, 10}, c.FamilySpecs[0].Periods)
	assert.Equal(t, 2.5, c.FamilySpecs[1].Params["k"])
	require.Len(t, c.Tiers, 1)
	assert.Equal(t, "1亿门槛", c.Tiers[0].Name)

	// the compact env form wins over the file
	t.Setenv("ETF_FAMILIES", "RSI:6;OBV")
	c, err = Load()
	require.NoError(t, err)
	require.Len(t, c.FamilySpecs, 2)
	assert.Equal(t, "RSI", c.FamilySpecs[0].Name)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"workers":         {"ETF_WORKERS": "0"},
		"format":          {"ETF_FORMAT": "xlsx"},
		"ratio":           {"ETF_MIN_SUCCESS_RATIO": "1.5"},
		"unknown family":  {"ETF_FAMILIES": "KDJ:9"},
		"bad int":         {"ETF_WORKERS": "many"},
		"missing file":    {"ETF_CONFIG_FILE": "/nonexistent/etf.yaml"},
		"allow-list loop": {"ETF_ALLOWLIST_DIR": "lists", "ETF_ALLOWLIST_OUT_DIR": "lists/"},
		"shared cache":    {"ETF_CACHE_DIR": "data/out", "ETF_OUTPUT_DIR": "./data/out"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("ETF_CONFIG_FILE", "")
			t.Setenv("ETF_FAMILIES", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.Config), "%v", err)
		})
	}
}

func TestLoadFile_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("familys:\n  - name: SMA\n"), 0o644))
	var c Config
	err := c.LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}
