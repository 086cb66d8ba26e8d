package genetic

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/tourga/internal/optimization"
	"github.com/copyleftdev/tourga/internal/optimization/geography"
)

// squareOptimum is the shortest tour from the centre around the four corners
// of a 100x100 square: three sides plus two half diagonals.
var squareOptimum = 300 + 100*math.Sqrt2

func squareGeography(t testing.TB) *geography.Geography {
	t.Helper()
	geo, err := geography.New(geography.Point{Name: "home", X: 50, Y: 50}, []geography.Point{
		{Name: "sw", X: 0, Y: 0},
		{Name: "nw", X: 0, Y: 100},
		{Name: "ne", X: 100, Y: 100},
		{Name: "se", X: 100, Y: 0},
	})
	require.NoError(t, err)
	return geo
}

func randomGeography(t testing.TB, n int, seed int64) *geography.Geography {
	t.Helper()
	geo, err := geography.Generate(rand.New(rand.NewSource(seed)), geography.GenerateOptions{
		Width:        100,
		Height:       100,
		NumLocations: n,
	})
	require.NoError(t, err)
	return geo
}

func testConfig(n int) optimization.Config {
	cfg := optimization.DefaultConfig()
	cfg.NumLocations = n
	cfg.PopulationSize = 20
	cfg.NumGenerations = 50
	cfg.RandomSeed = 42
	return cfg
}

// requirePermutation fails unless seq holds each of 0..n-1 exactly once.
func requirePermutation(t testing.TB, seq []int, n int) {
	t.Helper()
	require.Len(t, seq, n)
	sorted := append([]int(nil), seq...)
	sort.Ints(sorted)
	for i, v := range sorted {
		require.Equal(t, i, v, "sequence %v is not a permutation of 0..%d", seq, n-1)
	}
}
