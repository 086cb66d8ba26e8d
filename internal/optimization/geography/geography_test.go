package geography

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareGeography(t *testing.T) *Geography {
	t.Helper()
	geo, err := New(Point{Name: "home", X: 50, Y: 50}, []Point{
		{Name: "sw", X: 0, Y: 0},
		{Name: "nw", X: 0, Y: 100},
		{Name: "ne", X: 100, Y: 100},
		{Name: "se", X: 100, Y: 0},
	})
	require.NoError(t, err)
	return geo
}

func TestNew(t *testing.T) {
	home := Point{Name: "home", X: 50, Y: 50}

	tests := []struct {
		name    string
		points  []Point
		wantErr error
	}{
		{
			name:   "valid",
			points: []Point{{Name: "a", X: 0, Y: 0}, {Name: "b", X: 10, Y: 10}},
		},
		{
			name:    "no points",
			points:  nil,
			wantErr: ErrDegenerate,
		},
		{
			name:    "duplicate names",
			points:  []Point{{Name: "a", X: 0, Y: 0}, {Name: "a", X: 10, Y: 10}},
			wantErr: ErrDuplicateName,
		},
		{
			name:    "point named like home",
			points:  []Point{{Name: "home", X: 0, Y: 0}},
			wantErr: ErrDuplicateName,
		},
		{
			name:    "every point on home",
			points:  []Point{{Name: "a", X: 50, Y: 50}, {Name: "b", X: 50, Y: 50}},
			wantErr: ErrDegenerate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo, err := New(home, tt.points)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, geo)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.points), geo.Len())
			assert.Equal(t, home, geo.Home())
		})
	}
}

func TestDistanceBetween(t *testing.T) {
	geo := squareGeography(t)
	home := geo.Home()
	sw, ne := geo.Point(0), geo.Point(2)

	assert.InDelta(t, 50*math.Sqrt2, geo.DistanceBetween(home, sw), 1e-9)
	assert.InDelta(t, 100*math.Sqrt2, geo.DistanceBetween(sw, ne), 1e-9)
	assert.Equal(t, 0.0, geo.DistanceBetween(sw, sw))

	// Symmetric, and the unordered pair shares one cache entry
	assert.Equal(t, geo.DistanceBetween(ne, sw), geo.DistanceBetween(sw, ne))
	assert.Equal(t, 2, geo.CachedPairs())

	geo.DistanceBetween(home, sw)
	assert.Equal(t, 2, geo.CachedPairs(), "cached pairs should not grow on repeat lookups")
}

func TestDistanceBetweenConcurrent(t *testing.T) {
	geo := squareGeography(t)
	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 1000; i++ {
				a, b := geo.Point(i%4), geo.Point((i+1)%4)
				geo.DistanceBetween(a, b)
			}
		}()
	}
	for w := 0; w < 8; w++ {
		<-done
	}
	assert.Equal(t, 4, geo.CachedPairs())
}

func TestIndexOf(t *testing.T) {
	geo := squareGeography(t)
	assert.Equal(t, 2, geo.IndexOf("ne"))
	assert.Equal(t, -1, geo.IndexOf("home"))
	assert.Equal(t, -1, geo.IndexOf("missing"))
}

func TestNumPossibleSolutions(t *testing.T) {
	geo := squareGeography(t)
	assert.Equal(t, int64(24), geo.NumPossibleSolutions().Int64())
}

func TestGenerate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	geo, err := Generate(rng, GenerateOptions{Width: 100, Height: 100, NumLocations: 25, AvoidCenter: true})
	require.NoError(t, err)
	require.Equal(t, 25, geo.Len())
	assert.Equal(t, Point{Name: HomeName, X: 50, Y: 50}, geo.Home())

	seen := make(map[[2]float64]bool)
	names := make(map[string]bool)
	for _, p := range geo.Points() {
		assert.GreaterOrEqual(t, p.X, 0.0)
		assert.LessOrEqual(t, p.X, 100.0)
		assert.GreaterOrEqual(t, p.Y, 0.0)
		assert.LessOrEqual(t, p.Y, 100.0)
		assert.False(t, p.X > 40 && p.X < 60 && p.Y > 40 && p.Y < 60, "point %v in centre band", p)

		xy := [2]float64{p.X, p.Y}
		assert.False(t, seen[xy], "overlapping point %v", p)
		seen[xy] = true
		assert.False(t, names[p.Name], "duplicate name %s", p.Name)
		names[p.Name] = true
	}
}

func TestGenerateErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := Generate(rng, GenerateOptions{Width: 100, Height: 100, NumLocations: len(DefaultNames) + 1})
	assert.ErrorIs(t, err, ErrTooManyLocations)

	_, err = Generate(rng, GenerateOptions{Width: 0, Height: 100, NumLocations: 3})
	assert.Error(t, err)

	_, err = Generate(rng, GenerateOptions{Width: 100, Height: 100, NumLocations: 0})
	assert.Error(t, err)

	// A 1x1 grid has 4 cells, one of them taken by home
	_, err = Generate(rng, GenerateOptions{Width: 1, Height: 1, NumLocations: 4, Names: []string{"a", "b", "c", "d"}})
	assert.Error(t, err)
}
