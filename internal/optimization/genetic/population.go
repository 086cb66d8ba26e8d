package genetic

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/tourga/internal/optimization"
	"github.com/copyleftdev/tourga/internal/optimization/geography"
)

// Tolerance for the last cumulative selection weight.
const cumulativeTolerance = 1e-4

// Population is an unordered collection of candidates for one generation.
// It never changes after construction; every derived view is computed on
// first access and cached.
type Population struct {
	geo        *geography.Geography
	candidates []*Candidate
	invalid    int

	rankOnce sync.Once
	ranked   []*Candidate

	weightsOnce sync.Once
	total       float64
	weights     []float64
	cumulative  []float64
}

// Stats summarizes the distances of a population.
type Stats struct {
	Best   float64
	Worst  float64
	Mean   float64
	StdDev float64
}

// NewPopulation evaluates every candidate and wraps them in a population.
// It fails if any candidate has no sequence or a zero-length tour.
func NewPopulation(geo *geography.Geography, candidates []*Candidate) (*Population, error) {
	const op = "NewPopulation"

	if len(candidates) == 0 {
		return nil, optimization.NewError("population must not be empty").
			WithOperation(op).
			WithComponent("genetic")
	}

	p := &Population{
		geo:        geo,
		candidates: append([]*Candidate(nil), candidates...),
	}
	for _, c := range p.candidates {
		if _, err := c.Fitness(); err != nil {
			return nil, optimization.WrapError(err, "evaluating candidate").
				WithOperation(op).
				WithComponent("genetic")
		}
		if c.Penalized() {
			p.invalid++
		}
	}
	return p, nil
}

// RandomPopulation builds a population of size independent random candidates.
func RandomPopulation(geo *geography.Geography, size int, rng *rand.Rand) (*Population, error) {
	candidates := make([]*Candidate, size)
	for i := range candidates {
		candidates[i] = RandomCandidate(geo, rng)
	}
	return NewPopulation(geo, candidates)
}

// Len returns the number of candidates.
func (p *Population) Len() int {
	return len(p.candidates)
}

// Candidates returns the candidates in insertion order.
func (p *Population) Candidates() []*Candidate {
	return append([]*Candidate(nil), p.candidates...)
}

// Invalid returns how many candidates failed the permutation check.
func (p *Population) Invalid() int {
	return p.invalid
}

// Ranked returns the candidates sorted by ascending distance. Ties keep
// insertion order.
func (p *Population) Ranked() []*Candidate {
	p.rankOnce.Do(func() {
		p.ranked = append([]*Candidate(nil), p.candidates...)
		sort.SliceStable(p.ranked, func(i, j int) bool {
			return p.ranked[i].mustDistance() < p.ranked[j].mustDistance()
		})
	})
	return p.ranked
}

func (p *Population) computeWeights() {
	p.weightsOnce.Do(func() {
		ranked := p.Ranked()
		fitness := make([]float64, len(ranked))
		for i, c := range ranked {
			fitness[i], _ = c.Fitness()
		}
		p.total = floats.Sum(fitness)

		p.weights = make([]float64, len(fitness))
		floats.ScaleTo(p.weights, 1/p.total, fitness)

		p.cumulative = make([]float64, len(fitness)+1)
		floats.CumSum(p.cumulative[1:], p.weights)
	})
}

// TotalFitness returns the sum of every candidate's fitness.
func (p *Population) TotalFitness() float64 {
	p.computeWeights()
	return p.total
}

// TotalDistance returns the sum of every candidate's distance.
func (p *Population) TotalDistance() float64 {
	total := 0.0
	for _, c := range p.candidates {
		total += c.mustDistance()
	}
	return total
}

// SelectionWeights returns each ranked candidate's share of the total fitness,
// parallel to Ranked.
func (p *Population) SelectionWeights() []float64 {
	p.computeWeights()
	return p.weights
}

// CumulativeWeights returns the running sum of SelectionWeights, starting
// with 0 and ending at 1 within floating tolerance. It has Len()+1 entries.
func (p *Population) CumulativeWeights() []float64 {
	p.computeWeights()
	return p.cumulative
}

// Select draws a candidate index into Ranked with probability proportional
// to fitness, by inverse-CDF lookup of r in CumulativeWeights.
func (p *Population) Select(r float64) int {
	cumulative := p.CumulativeWeights()
	// smallest i with cumulative[i+1] >= r
	i := sort.SearchFloat64s(cumulative[1:], r)
	if i >= p.Len() {
		// r landed above the rounded last weight
		i = p.Len() - 1
	}
	return i
}

// Best returns the candidate with the smallest distance, first occurrence
// on ties.
func (p *Population) Best() *Candidate {
	best := p.candidates[0]
	for _, c := range p.candidates[1:] {
		if c.mustDistance() < best.mustDistance() {
			best = c
		}
	}
	return best
}

// Worst returns the candidate with the largest distance, first occurrence
// on ties.
func (p *Population) Worst() *Candidate {
	worst := p.candidates[0]
	for _, c := range p.candidates[1:] {
		if c.mustDistance() > worst.mustDistance() {
			worst = c
		}
	}
	return worst
}

// Elite returns up to k top-ranked candidates whose routes are pairwise
// distinct, mirrors counted as equal. It never pads with duplicates.
func (p *Population) Elite(k int) []*Candidate {
	if k <= 0 {
		return nil
	}
	elite := make([]*Candidate, 0, k)
	seen := make(map[string]bool, k)
	for _, c := range p.Ranked() {
		if len(elite) == k {
			break
		}
		key := c.routeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		elite = append(elite, c)
	}
	return elite
}

// Collapsed reports whether every candidate describes the same route.
func (p *Population) Collapsed() bool {
	first := p.candidates[0]
	for _, c := range p.candidates[1:] {
		if !first.SameRoute(c) {
			return false
		}
	}
	return true
}

// Stats returns the distance statistics of the population.
func (p *Population) Stats() Stats {
	distances := make([]float64, len(p.candidates))
	for i, c := range p.candidates {
		distances[i] = c.mustDistance()
	}
	mean, std := stat.MeanStdDev(distances, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return Stats{
		Best:   floats.Min(distances),
		Worst:  floats.Max(distances),
		Mean:   mean,
		StdDev: std,
	}
}
