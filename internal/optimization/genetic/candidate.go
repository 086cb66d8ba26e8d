// Package genetic implements the evolutionary tour search: candidates,
// populations, breeding operators and the generation loop.
package genetic

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/copyleftdev/tourga/internal/optimization"
	"github.com/copyleftdev/tourga/internal/optimization/geography"
)

const (
	// Invalid tours are scaled and shifted so they rank below every valid one.
	penaltyFactor   = 100
	penaltyConstant = 10000
)

// Candidate is one tour: an ordering of every non-home location, referenced
// by index into the geography. The sequence is copied in at construction and
// never changes afterwards, so distance and fitness are computed once.
type Candidate struct {
	geo      *geography.Geography
	sequence []int

	once      sync.Once
	distance  float64
	penalized bool
	err       error
}

// NewCandidate creates a candidate from a sequence of location indices.
// The sequence is copied; later edits by the caller do not affect the candidate.
func NewCandidate(geo *geography.Geography, sequence []int) *Candidate {
	return &Candidate{
		geo:      geo,
		sequence: append([]int(nil), sequence...),
	}
}

// RandomCandidate creates a candidate visiting every location in random order.
func RandomCandidate(geo *geography.Geography, rng *rand.Rand) *Candidate {
	return &Candidate{
		geo:      geo,
		sequence: rng.Perm(geo.Len()),
	}
}

// Sequence returns a copy of the location indices in visiting order.
func (c *Candidate) Sequence() []int {
	return append([]int(nil), c.sequence...)
}

// Len returns the number of locations in the sequence.
func (c *Candidate) Len() int {
	return len(c.sequence)
}

// Tour returns the full route [home, ...sequence, home]. Indices outside
// the geography are skipped.
func (c *Candidate) Tour() []geography.Point {
	tour := make([]geography.Point, 0, len(c.sequence)+2)
	tour = append(tour, c.geo.Home())
	for _, i := range c.sequence {
		if i >= 0 && i < c.geo.Len() {
			tour = append(tour, c.geo.Point(i))
		}
	}
	return append(tour, c.geo.Home())
}

// Names returns the printable route.
func (c *Candidate) Names() []string {
	tour := c.Tour()
	names := make([]string, len(tour))
	for i, p := range tour {
		names[i] = p.Name
	}
	return names
}

// Valid reports whether the sequence visits every location exactly once.
func (c *Candidate) Valid() bool {
	n := c.geo.Len()
	if len(c.sequence) != n {
		return false
	}
	seen := make([]bool, n)
	for _, i := range c.sequence {
		if i < 0 || i >= n || seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

// Distance returns the round-trip length of the tour. Invalid sequences are
// penalized rather than rejected; see Penalized.
func (c *Candidate) Distance() (float64, error) {
	c.once.Do(c.evaluate)
	return c.distance, c.err
}

// Fitness returns 1/Distance.
func (c *Candidate) Fitness() (float64, error) {
	d, err := c.Distance()
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, optimization.WrapError(optimization.ErrZeroDistance, "fitness undefined").
			WithOperation("Candidate.Fitness").
			WithComponent("genetic")
	}
	return 1 / d, nil
}

// Penalized reports whether the candidate failed the permutation check
// when its distance was computed.
func (c *Candidate) Penalized() bool {
	c.once.Do(c.evaluate)
	return c.penalized
}

func (c *Candidate) evaluate() {
	if len(c.sequence) == 0 {
		c.err = optimization.WrapError(optimization.ErrUninitializedCandidate, "distance undefined").
			WithOperation("Candidate.Distance").
			WithComponent("genetic")
		return
	}

	tour := c.Tour()
	total := 0.0
	for i := 1; i < len(tour); i++ {
		total += c.geo.DistanceBetween(tour[i-1], tour[i])
	}

	if !c.Valid() {
		c.penalized = true
		total = total*penaltyFactor + penaltyConstant
	}
	c.distance = total
}

// mustDistance is used once a population has evaluated the candidate.
func (c *Candidate) mustDistance() float64 {
	d, _ := c.Distance()
	return d
}

// SameRoute reports whether both candidates describe the same physical
// route, either in the same or in reversed order.
func (c *Candidate) SameRoute(other *Candidate) bool {
	if len(c.sequence) != len(other.sequence) {
		return false
	}
	forward, backward := true, true
	n := len(c.sequence)
	for i := 0; i < n && (forward || backward); i++ {
		if c.sequence[i] != other.sequence[i] {
			forward = false
		}
		if c.sequence[i] != other.sequence[n-1-i] {
			backward = false
		}
	}
	return forward || backward
}

// routeKey returns an identifier shared by a sequence and its mirror.
func (c *Candidate) routeKey() string {
	n := len(c.sequence)
	reversed := false
	for i := 0; i < n; i++ {
		a, b := c.sequence[i], c.sequence[n-1-i]
		if a != b {
			reversed = b < a
			break
		}
	}

	var sb strings.Builder
	for i := 0; i < n; i++ {
		v := c.sequence[i]
		if reversed {
			v = c.sequence[n-1-i]
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(v))
	}
	return sb.String()
}
