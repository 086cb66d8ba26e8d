package genetic

import (
	"math/rand"
)

// Crossover cuts both parents at two random indices in [0, n] and builds a
// child from each side of the pair. See CrossoverAt.
func Crossover(rng *rand.Rand, a, b []int) ([]int, []int) {
	n := len(a)
	lo, hi := rng.Intn(n+1), rng.Intn(n+1)
	if lo > hi {
		lo, hi = hi, lo
	}
	return CrossoverAt(a, b, lo, hi)
}

// CrossoverAt performs order-preserving crossover with the cut [lo, hi).
// The first child keeps a[lo:hi] in place and fills every other position,
// in ascending order, with the unused locations of b in b's order. The
// second child is built the same way with the parents swapped.
//
// Both parents must be permutations of 0..n-1. Cuts are clamped to [0, n].
func CrossoverAt(a, b []int, lo, hi int) ([]int, []int) {
	n := len(a)
	lo = clamp(lo, 0, n)
	hi = clamp(hi, 0, n)
	if lo > hi {
		lo, hi = hi, lo
	}
	return fillChild(a, b, lo, hi), fillChild(b, a, lo, hi)
}

func fillChild(base, secondary []int, lo, hi int) []int {
	n := len(base)
	child := make([]int, n)
	used := make([]bool, n)

	for i := lo; i < hi; i++ {
		child[i] = base[i]
		if v := base[i]; v >= 0 && v < n {
			used[v] = true
		}
	}

	// next unused location in the secondary parent, then in index order
	// should the secondary parent not be a permutation
	next, spare := 0, 0
	take := func() int {
		for ; next < len(secondary); next++ {
			v := secondary[next]
			if v >= 0 && v < n && !used[v] {
				next++
				used[v] = true
				return v
			}
		}
		for ; spare < n; spare++ {
			if !used[spare] {
				used[spare] = true
				return spare
			}
		}
		return -1
	}

	for i := 0; i < lo; i++ {
		child[i] = take()
	}
	for i := hi; i < n; i++ {
		child[i] = take()
	}
	return child
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MutationKind identifies which mutation band a draw fell into.
type MutationKind int

const (
	MutationNone MutationKind = iota
	MutationShuffle
	MutationSequentialSwap
	MutationRandomSwap
)

func (k MutationKind) String() string {
	switch k {
	case MutationShuffle:
		return "shuffle"
	case MutationSequentialSwap:
		return "sequential_swap"
	case MutationRandomSwap:
		return "random_swap"
	default:
		return "none"
	}
}

// MutationRates are cumulative thresholds: a single draw r in [0, 1)
// selects shuffle when r <= Shuffle, a sequential swap when
// r <= SequentialSwap, a random swap when r <= RandomSwap, and nothing
// otherwise.
type MutationRates struct {
	Shuffle        float64
	SequentialSwap float64
	RandomSwap     float64
}

// Mutate applies at most one mutation to seq in place and reports which.
// Every outcome only reorders seq.
func Mutate(rng *rand.Rand, seq []int, rates MutationRates) MutationKind {
	n := len(seq)
	r := rng.Float64()

	switch {
	case r <= rates.Shuffle:
		rng.Shuffle(n, func(i, j int) { seq[i], seq[j] = seq[j], seq[i] })
		return MutationShuffle
	case r <= rates.SequentialSwap:
		if n >= 2 {
			i := 1 + rng.Intn(n-1)
			seq[i-1], seq[i] = seq[i], seq[i-1]
		}
		return MutationSequentialSwap
	case r <= rates.RandomSwap:
		if n >= 1 {
			// the same index may be drawn twice, leaving seq unchanged
			i, j := rng.Intn(n), rng.Intn(n)
			seq[i], seq[j] = seq[j], seq[i]
		}
		return MutationRandomSwap
	}
	return MutationNone
}
