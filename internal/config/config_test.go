package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/tourga/internal/optimization"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 100, cfg.Map.Width)
	assert.Equal(t, 100, cfg.Map.Height)
	assert.Equal(t, 4, cfg.Evolution.Workers)

	// The evolution defaults match the search defaults
	want := optimization.DefaultConfig()
	assert.Equal(t, want, cfg.Evolution.OptimizerConfig())
	assert.NoError(t, cfg.Evolution.OptimizerConfig().Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("MAP_WIDTH", "400")
	t.Setenv("EVO_POPULATION_SIZE", "80")
	t.Setenv("EVO_GENERATIONS", "500")
	t.Setenv("EVO_ELITE_AMOUNT", "4")
	t.Setenv("EVO_SHUFFLE_CHANCE", "0.02")
	t.Setenv("EVO_NUM_LOCATIONS", "30")
	t.Setenv("EVO_WORKERS", "8")
	t.Setenv("EVO_POLL_INTERVAL", "250ms")
	t.Setenv("EVO_STAGNATION_WINDOW", "100")
	t.Setenv("EVO_SEED", "1234")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 400, cfg.Map.Width)
	assert.Equal(t, 8, cfg.Evolution.Workers)

	opt := cfg.Evolution.OptimizerConfig()
	assert.Equal(t, 80, opt.PopulationSize)
	assert.Equal(t, 500, opt.NumGenerations)
	assert.Equal(t, 4, opt.EliteAmount)
	assert.Equal(t, 0.02, opt.ShuffleChance)
	assert.Equal(t, 30, opt.NumLocations)
	assert.Equal(t, 250*time.Millisecond, opt.PollInterval)
	assert.Equal(t, 100, opt.StagnationWindow)
	assert.Equal(t, int64(1234), opt.RandomSeed)
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("EVO_GENERATIONS", "many")
	_, err := Load()
	assert.Error(t, err)
}
