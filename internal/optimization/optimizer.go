package optimization

import (
	"context"
	"time"

	"github.com/copyleftdev/tourga/internal/optimization/geography"
)

// Solver defines the interface shared by the single-population loop and
// the multi-worker coordinator.
type Solver interface {
	// Solve runs the search until the generation budget is consumed,
	// the population collapses, stagnation is detected or ctx is cancelled.
	Solve(ctx context.Context) (*Result, error)

	// Best returns the best result observed so far, or nil before the
	// first generation has been evaluated.
	Best() *Snapshot

	// History returns the best-ever distance recorded after each generation.
	History() []float64

	// Stop requests the search to stop at the next generation boundary.
	Stop()
}

// Config contains configuration for an evolutionary search.
type Config struct {
	// Number of candidates in every generation
	PopulationSize int

	// Generation budget; the only hard termination condition
	NumGenerations int

	// Structurally distinct candidates carried unchanged into the next generation
	EliteAmount int

	// Cumulative mutation bands: ShuffleChance < SequentialSwapChance < RandomSwapChance
	ShuffleChance        float64
	SequentialSwapChance float64
	RandomSwapChance     float64

	// Number of non-home locations every tour visits
	NumLocations int

	// Generations between two progress snapshots of a worker
	SnapshotInterval int

	// Stop when the best distance has not changed for this many generations.
	// Zero disables the check.
	StagnationWindow int

	// How often the coordinator drains worker snapshots
	PollInterval time.Duration

	// Random seed for reproducibility; zero means time based
	RandomSeed int64
}

// DefaultConfig returns the configuration used when callers do not
// override anything.
func DefaultConfig() Config {
	return Config{
		PopulationSize:       50,
		NumGenerations:       2000,
		EliteAmount:          2,
		ShuffleChance:        0.01,
		SequentialSwapChance: 0.05,
		RandomSwapChance:     0.15,
		NumLocations:         25,
		SnapshotInterval:     10,
		PollInterval:         100 * time.Millisecond,
	}
}

// Validate checks the configuration before any worker starts.
func (c Config) Validate() error {
	const op = "Config.Validate"

	switch {
	case c.PopulationSize < 2:
		return ConfigErrorf(op, "population size must be at least 2, got %d", c.PopulationSize)
	case c.NumGenerations < 0:
		return ConfigErrorf(op, "generation budget must not be negative, got %d", c.NumGenerations)
	case c.EliteAmount < 0 || c.EliteAmount >= c.PopulationSize:
		return ConfigErrorf(op, "elite amount must be in [0, %d), got %d", c.PopulationSize, c.EliteAmount)
	case c.NumLocations < 1:
		return ConfigErrorf(op, "number of locations must be positive, got %d", c.NumLocations)
	case c.SnapshotInterval < 0:
		return ConfigErrorf(op, "snapshot interval must not be negative, got %d", c.SnapshotInterval)
	case c.StagnationWindow < 0:
		return ConfigErrorf(op, "stagnation window must not be negative, got %d", c.StagnationWindow)
	case c.PollInterval < 0:
		return ConfigErrorf(op, "poll interval must not be negative, got %s", c.PollInterval)
	}

	for name, p := range map[string]float64{
		"shuffle":         c.ShuffleChance,
		"sequential swap": c.SequentialSwapChance,
		"random swap":     c.RandomSwapChance,
	} {
		if p < 0 || p > 1 {
			return ConfigErrorf(op, "%s chance must be in [0, 1], got %v", name, p)
		}
	}

	if !(c.ShuffleChance < c.SequentialSwapChance && c.SequentialSwapChance < c.RandomSwapChance) {
		return ConfigErrorf(op, "mutation thresholds must be strictly ordered: shuffle %v < sequential swap %v < random swap %v",
			c.ShuffleChance, c.SequentialSwapChance, c.RandomSwapChance)
	}

	return nil
}

// ValidateFor checks the configuration against the geography it will run on.
func (c Config) ValidateFor(geo *geography.Geography) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if geo == nil {
		return ConfigErrorf("Config.ValidateFor", "geography must not be nil")
	}
	if geo.Len() != c.NumLocations {
		return ConfigErrorf("Config.ValidateFor", "geography has %d locations, config expects %d", geo.Len(), c.NumLocations)
	}
	return nil
}

// Snapshot is a worker's progress report.
type Snapshot struct {
	Worker       int
	Generation   int
	BestDistance float64
	BestSequence []int
}

// Result contains the result of a search.
type Result struct {
	BestDistance      float64
	BestSequence      []int
	BestTour          []geography.Point
	Generations       int
	State             State
	History           []float64
	InvalidCandidates int64
	Workers           int
}
