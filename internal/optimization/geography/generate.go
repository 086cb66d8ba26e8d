package geography

import (
	"fmt"
	"math/rand"
)

// HomeName is the name of the home location of generated maps.
const HomeName = "HQ"

// maxPlacementAttempts bounds the rejection sampling of a single location.
const maxPlacementAttempts = 10000

// GenerateOptions controls random map generation.
type GenerateOptions struct {
	Width        int
	Height       int
	NumLocations int
	// Names to draw location names from; DefaultNames when empty.
	Names []string
	// AvoidCenter keeps locations out of the central band (40%..60% on both
	// axes) so the home marker stays legible on renders.
	AvoidCenter bool
}

// Generate creates a map with NumLocations randomly placed, non-overlapping
// locations on an integer grid and home at the centre.
func Generate(rng *rand.Rand, opts GenerateOptions) (*Geography, error) {
	names := opts.Names
	if len(names) == 0 {
		names = DefaultNames
	}

	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("map size must be positive, got %dx%d", opts.Width, opts.Height)
	}
	if opts.NumLocations < 1 {
		return nil, fmt.Errorf("number of locations must be positive, got %d", opts.NumLocations)
	}
	if opts.NumLocations > len(names) {
		return nil, fmt.Errorf("%w: requested %d locations, only %d names available",
			ErrTooManyLocations, opts.NumLocations, len(names))
	}

	home := Point{Name: HomeName, X: float64(opts.Width) / 2, Y: float64(opts.Height) / 2}

	type cell struct{ x, y int }
	taken := map[cell]bool{{int(home.X), int(home.Y)}: true}

	picked := rng.Perm(len(names))[:opts.NumLocations]
	points := make([]Point, 0, opts.NumLocations)
	for _, n := range picked {
		placed := false
		for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
			c := cell{rng.Intn(opts.Width + 1), rng.Intn(opts.Height + 1)}
			if taken[c] {
				continue
			}
			if opts.AvoidCenter && inCenterBand(c.x, opts.Width) && inCenterBand(c.y, opts.Height) {
				continue
			}
			taken[c] = true
			points = append(points, Point{Name: names[n], X: float64(c.x), Y: float64(c.y)})
			placed = true
			break
		}
		if !placed {
			return nil, fmt.Errorf("could not place %d locations on a %dx%d map", opts.NumLocations, opts.Width, opts.Height)
		}
	}

	return New(home, points)
}

func inCenterBand(v, size int) bool {
	lo, hi := size*40/100, size*60/100
	return v > lo && v < hi
}

// DefaultNames is the pool generated location names are drawn from.
var DefaultNames = []string{
	"Ace", "Apollo", "Bailey", "Bandit", "Baxter", "Bear", "Beau", "Benji", "Benny", "Bentley",
	"Blue", "Bo", "Boomer", "Brady", "Brody", "Bruno", "Brutus", "Bubba", "Buddy", "Buster",
	"Cash", "Champ", "Chance", "Charlie", "Chase", "Chester", "Chico", "Coco", "Cody", "Cooper",
	"Copper", "Dexter", "Diesel", "Duke", "Elvis", "Finn", "Frankie", "George", "Gizmo", "Gunner",
	"Gus", "Hank", "Harley", "Henry", "Hunter", "Jack", "Jackson", "Jake", "Jasper", "Jax",
	"Joey", "Kobe", "Leo", "Loki", "Louie", "Lucky", "Luke", "Mac", "Marley", "Max",
	"Mickey", "Milo", "Moose", "Murphy", "Oliver", "Ollie", "Oreo", "Oscar", "Otis", "Peanut",
	"Prince", "Rex", "Riley", "Rocco", "Rocky", "Romeo", "Roscoe", "Rudy", "Rufus", "Rusty",
	"Sam", "Sammy", "Samson", "Scooter", "Scout", "Shadow", "Simba", "Sparky", "Spike", "Tank",
	"Teddy", "Thor", "Toby", "Tucker", "Tyson", "Vader", "Winston", "Yoda", "Zeus", "Ziggy",
}
