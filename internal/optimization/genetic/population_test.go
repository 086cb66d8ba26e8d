package genetic

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopulationRanking(t *testing.T) {
	geo := squareGeography(t)
	crossing := NewCandidate(geo, []int{0, 2, 1, 3})
	optimal := NewCandidate(geo, []int{0, 1, 2, 3})
	mirror := NewCandidate(geo, []int{3, 2, 1, 0})

	pop, err := NewPopulation(geo, []*Candidate{crossing, optimal, mirror})
	require.NoError(t, err)

	ranked := pop.Ranked()
	require.Len(t, ranked, 3)
	// Ties keep insertion order
	assert.Same(t, optimal, ranked[0])
	assert.Same(t, mirror, ranked[1])
	assert.Same(t, crossing, ranked[2])

	assert.Same(t, optimal, pop.Best())
	assert.Same(t, crossing, pop.Worst())
	assert.Equal(t, 0, pop.Invalid())

	// Cached: the same slice is returned on every call
	assert.Same(t, &ranked[0], &pop.Ranked()[0])
}

func TestPopulationWorstTieBreak(t *testing.T) {
	geo := squareGeography(t)
	first := NewCandidate(geo, []int{0, 2, 1, 3})
	second := NewCandidate(geo, []int{3, 1, 2, 0})
	best := NewCandidate(geo, []int{0, 1, 2, 3})

	pop, err := NewPopulation(geo, []*Candidate{best, first, second})
	require.NoError(t, err)
	assert.Same(t, first, pop.Worst())
}

func TestPopulationCumulativeWeights(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 4, 5} {
		geo := randomGeography(t, 15, seed)
		pop, err := RandomPopulation(geo, 40, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)

		weights := pop.SelectionWeights()
		cumulative := pop.CumulativeWeights()
		require.Len(t, weights, 40)
		require.Len(t, cumulative, 41)

		assert.Equal(t, 0.0, cumulative[0])
		assert.Less(t, math.Abs(cumulative[40]-1), cumulativeTolerance)
		for i := 1; i < len(cumulative); i++ {
			assert.GreaterOrEqual(t, cumulative[i], cumulative[i-1])
		}

		// Weights follow the ranking: fitter candidates weigh more
		for i := 1; i < len(weights); i++ {
			assert.GreaterOrEqual(t, weights[i-1], weights[i])
		}

		total := 0.0
		for _, c := range pop.Candidates() {
			f, err := c.Fitness()
			require.NoError(t, err)
			total += f
		}
		assert.InDelta(t, total, pop.TotalFitness(), 1e-12)
	}
}

func TestPopulationSelect(t *testing.T) {
	geo := squareGeography(t)
	pop, err := NewPopulation(geo, []*Candidate{
		NewCandidate(geo, []int{0, 2, 1, 3}),
		NewCandidate(geo, []int{0, 1, 2, 3}),
	})
	require.NoError(t, err)
	cumulative := pop.CumulativeWeights()

	assert.Equal(t, 0, pop.Select(0))
	assert.Equal(t, 0, pop.Select(cumulative[1]))
	assert.Equal(t, 1, pop.Select(cumulative[1]+1e-9))
	assert.Equal(t, 1, pop.Select(0.999999))
	// Above the rounded last weight still lands on the last candidate
	assert.Equal(t, 1, pop.Select(1.5))

	// Selection frequency follows fitness share
	rng := rand.New(rand.NewSource(9))
	counts := make([]int, 2)
	const draws = 20000
	for i := 0; i < draws; i++ {
		counts[pop.Select(rng.Float64())]++
	}
	assert.InDelta(t, pop.SelectionWeights()[0], float64(counts[0])/draws, 0.02)
}

func TestPopulationElite(t *testing.T) {
	geo := squareGeography(t)
	optimal := NewCandidate(geo, []int{0, 1, 2, 3})
	pop, err := NewPopulation(geo, []*Candidate{
		optimal,
		NewCandidate(geo, []int{3, 2, 1, 0}),
		NewCandidate(geo, []int{0, 1, 2, 3}),
		NewCandidate(geo, []int{1, 2, 3, 0}),
		NewCandidate(geo, []int{0, 2, 1, 3}),
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		k    int
		want int
	}{
		{name: "zero", k: 0, want: 0},
		{name: "one", k: 1, want: 1},
		{name: "two skips mirrors", k: 2, want: 2},
		{name: "more than distinct routes", k: 5, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elite := pop.Elite(tt.k)
			require.Len(t, elite, tt.want)
			if tt.want > 0 {
				assert.Same(t, optimal, elite[0])
			}
			for i := range elite {
				for j := i + 1; j < len(elite); j++ {
					assert.False(t, elite[i].SameRoute(elite[j]), "elite %d and %d share a route", i, j)
				}
			}
		})
	}
}

func TestPopulationCollapsed(t *testing.T) {
	geo := squareGeography(t)

	same, err := NewPopulation(geo, []*Candidate{
		NewCandidate(geo, []int{0, 1, 2, 3}),
		NewCandidate(geo, []int{3, 2, 1, 0}),
		NewCandidate(geo, []int{0, 1, 2, 3}),
	})
	require.NoError(t, err)
	assert.True(t, same.Collapsed())

	mixed, err := NewPopulation(geo, []*Candidate{
		NewCandidate(geo, []int{0, 1, 2, 3}),
		NewCandidate(geo, []int{0, 1, 3, 2}),
	})
	require.NoError(t, err)
	assert.False(t, mixed.Collapsed())
}

func TestPopulationStats(t *testing.T) {
	geo := squareGeography(t)
	pop, err := NewPopulation(geo, []*Candidate{
		NewCandidate(geo, []int{0, 1, 2, 3}),
		NewCandidate(geo, []int{0, 2, 1, 3}),
	})
	require.NoError(t, err)

	worst := 100 + 300*math.Sqrt2
	stats := pop.Stats()
	assert.InDelta(t, squareOptimum, stats.Best, 1e-9)
	assert.InDelta(t, worst, stats.Worst, 1e-9)
	assert.InDelta(t, (squareOptimum+worst)/2, stats.Mean, 1e-9)
	assert.Greater(t, stats.StdDev, 0.0)
	assert.InDelta(t, squareOptimum+worst, pop.TotalDistance(), 1e-9)

	single, err := NewPopulation(geo, []*Candidate{NewCandidate(geo, []int{0, 1, 2, 3})})
	require.NoError(t, err)
	assert.Equal(t, 0.0, single.Stats().StdDev)
}

func TestNewPopulationErrors(t *testing.T) {
	geo := squareGeography(t)

	_, err := NewPopulation(geo, nil)
	assert.Error(t, err)

	_, err = NewPopulation(geo, []*Candidate{NewCandidate(geo, nil)})
	assert.Error(t, err)
}

func TestPopulationCountsInvalid(t *testing.T) {
	geo := squareGeography(t)
	pop, err := NewPopulation(geo, []*Candidate{
		NewCandidate(geo, []int{0, 1, 2, 3}),
		NewCandidate(geo, []int{0, 0, 2, 3}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pop.Invalid())
	assert.True(t, pop.Worst().Penalized())
}
