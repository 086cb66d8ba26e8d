// Package geography holds the fixed set of locations a tour visits and the
// distances between them.
package geography

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrDegenerate is returned when the locations do not allow a tour of positive length.
	ErrDegenerate = errors.New("degenerate geography")
	// ErrDuplicateName is returned when two locations share a name.
	ErrDuplicateName = errors.New("duplicate location name")
	// ErrTooManyLocations is returned when more locations are requested than names exist.
	ErrTooManyLocations = errors.New("not enough location names")
)

// Point is a named location on the map. Points are compared by name.
type Point struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("%s(%g,%g)", p.Name, p.X, p.Y)
}

type pairKey struct {
	a, b string
}

func keyOf(a, b Point) pairKey {
	if a.Name > b.Name {
		a, b = b, a
	}
	return pairKey{a: a.Name, b: b.Name}
}

// Geography is an immutable set of locations plus a home location.
// It is safe for concurrent use; the distance cache is filled lazily and
// lives as long as the Geography.
type Geography struct {
	home   Point
	points []Point
	index  map[string]int

	mu    sync.RWMutex
	cache map[pairKey]float64
}

// New creates a Geography. Names must be unique across home and points,
// and at least one point must differ from home.
func New(home Point, points []Point) (*Geography, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no locations besides home", ErrDegenerate)
	}

	index := make(map[string]int, len(points))
	distinct := false
	for i, p := range points {
		if p.Name == home.Name {
			return nil, fmt.Errorf("%w: %q is also the home name", ErrDuplicateName, p.Name)
		}
		if _, seen := index[p.Name]; seen {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
		}
		index[p.Name] = i
		if p.X != home.X || p.Y != home.Y {
			distinct = true
		}
	}
	if !distinct {
		return nil, fmt.Errorf("%w: every location sits on home", ErrDegenerate)
	}

	return &Geography{
		home:   home,
		points: append([]Point(nil), points...),
		index:  index,
		cache:  make(map[pairKey]float64),
	}, nil
}

// Home returns the start and end point of every tour.
func (g *Geography) Home() Point {
	return g.home
}

// Len returns the number of non-home locations.
func (g *Geography) Len() int {
	return len(g.points)
}

// Point returns the i-th non-home location.
func (g *Geography) Point(i int) Point {
	return g.points[i]
}

// Points returns a copy of the non-home locations in construction order.
func (g *Geography) Points() []Point {
	return append([]Point(nil), g.points...)
}

// IndexOf returns the position of the named location, or -1.
func (g *Geography) IndexOf(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	return -1
}

// DistanceBetween returns the Euclidean distance between a and b.
// Results are memoized by the unordered pair of names.
func (g *Geography) DistanceBetween(a, b Point) float64 {
	if a.Name == b.Name {
		return 0
	}
	key := keyOf(a, b)

	g.mu.RLock()
	d, ok := g.cache[key]
	g.mu.RUnlock()
	if ok {
		return d
	}

	d = floats.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y}, 2)

	g.mu.Lock()
	g.cache[key] = d
	g.mu.Unlock()
	return d
}

// CachedPairs returns the number of memoized distances.
func (g *Geography) CachedPairs() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}

// NumPossibleSolutions returns n!, the size of the search space.
// Start and end are fixed at home, so only the order of the other
// locations matters.
func (g *Geography) NumPossibleSolutions() *big.Int {
	return new(big.Int).MulRange(1, int64(len(g.points)))
}
