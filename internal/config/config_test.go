package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no config.yaml present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "velocast.db", cfg.Store.SQLitePath)
	assert.Equal(t, "https://opendata.paris.fr/api/explore/v2.1", cfg.OpenData.BaseURL)
	assert.Equal(t, "comptage-velo-donnees-compteurs", cfg.OpenData.Dataset)
	assert.Equal(t, 100, cfg.OpenData.PageSize)
	assert.Equal(t, "https://archive-api.open-meteo.com/v1", cfg.Weather.BaseURL)
	assert.Equal(t, "solstice", cfg.Features.SeasonPolicy)
	assert.Equal(t, "exclusive", cfg.Features.RushHourPolicy)
	assert.Equal(t, "seasonal", cfg.Features.NightPolicy)
	assert.Equal(t, "drop", cfg.Features.MissingPolicy)
	assert.Equal(t, 0.10, cfg.Train.TestRatio)
	assert.Equal(t, 300, cfg.Train.NEstimators)
	assert.Equal(t, int64(42), cfg.Train.Seed)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/velocast
features:
  season_policy: calendar_month
  missing_policy: median_fill
train:
  n_estimators: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/velocast", cfg.Store.DatabaseURL)
	assert.Equal(t, "calendar_month", cfg.Features.SeasonPolicy)
	assert.Equal(t, "median_fill", cfg.Features.MissingPolicy)
	assert.Equal(t, 50, cfg.Train.NEstimators)
	// Everything else keeps defaults.
	assert.Equal(t, "exclusive", cfg.Features.RushHourPolicy)
	assert.Equal(t, 0.05, cfg.Train.LearningRate)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("VELOCAST_STORE_DRIVER", "postgres")
	t.Setenv("VELOCAST_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: ["), 0o644))
	chdir(t, dir)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read file")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
