package config

import (
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/tourga/internal/optimization"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Metrics struct {
		Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	}
	Map       Map
	Evolution Evolution
}

// Map controls random map generation.
type Map struct {
	Width       int  `env:"MAP_WIDTH" envDefault:"100"`
	Height      int  `env:"MAP_HEIGHT" envDefault:"100"`
	AvoidCenter bool `env:"MAP_AVOID_CENTER" envDefault:"false"`
}

// Evolution holds the search defaults used by the CLI and by jobs that
// leave a parameter unset.
type Evolution struct {
	PopulationSize       int           `env:"EVO_POPULATION_SIZE" envDefault:"50"`
	Generations          int           `env:"EVO_GENERATIONS" envDefault:"2000"`
	EliteAmount          int           `env:"EVO_ELITE_AMOUNT" envDefault:"2"`
	ShuffleChance        float64       `env:"EVO_SHUFFLE_CHANCE" envDefault:"0.01"`
	SequentialSwapChance float64       `env:"EVO_SEQUENTIAL_SWAP_CHANCE" envDefault:"0.05"`
	RandomSwapChance     float64       `env:"EVO_RANDOM_SWAP_CHANCE" envDefault:"0.15"`
	NumLocations         int           `env:"EVO_NUM_LOCATIONS" envDefault:"25"`
	Workers              int           `env:"EVO_WORKERS" envDefault:"4"`
	SnapshotInterval     int           `env:"EVO_SNAPSHOT_INTERVAL" envDefault:"10"`
	PollInterval         time.Duration `env:"EVO_POLL_INTERVAL" envDefault:"100ms"`
	StagnationWindow     int           `env:"EVO_STAGNATION_WINDOW" envDefault:"0"`
	Seed                 int64         `env:"EVO_SEED" envDefault:"0"`
}

// OptimizerConfig converts the evolution settings into a search configuration.
func (e Evolution) OptimizerConfig() optimization.Config {
	return optimization.Config{
		PopulationSize:       e.PopulationSize,
		NumGenerations:       e.Generations,
		EliteAmount:          e.EliteAmount,
		ShuffleChance:        e.ShuffleChance,
		SequentialSwapChance: e.SequentialSwapChance,
		RandomSwapChance:     e.RandomSwapChance,
		NumLocations:         e.NumLocations,
		SnapshotInterval:     e.SnapshotInterval,
		StagnationWindow:     e.StagnationWindow,
		PollInterval:         e.PollInterval,
		RandomSeed:           e.Seed,
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	return cfg, nil
}
