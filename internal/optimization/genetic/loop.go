package genetic

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/tourga/internal/metrics"
	"github.com/copyleftdev/tourga/internal/optimization"
	"github.com/copyleftdev/tourga/internal/optimization/geography"
)

// History capacity reserved up front; longer runs grow the slice.
const maxHistoryPrealloc = 4096

// Reporter receives a worker's progress snapshots. It must not block.
type Reporter func(optimization.Snapshot)

// Loop runs generation-by-generation replacement over one population:
// elitism, fitness-proportional parent selection, crossover and mutation.
// It keeps the best candidate ever observed, not only the best of the
// current generation.
type Loop struct {
	geo     *geography.Geography
	config  optimization.Config
	rates   MutationRates
	rng     *rand.Rand
	worker  int
	logger  *zap.Logger
	metrics *metrics.Metrics
	report  Reporter

	// owned by the goroutine running Solve or Step
	population *Population

	mu         sync.RWMutex
	state      optimization.State
	generation int
	best       *Candidate
	history    []float64
	lastStats  Stats
	invalid    int64
	cancel     context.CancelFunc
}

// Option configures a Loop.
type Option func(*Loop)

// WithRNG sets the random source. The source must not be shared with
// another goroutine.
func WithRNG(rng *rand.Rand) Option {
	return func(l *Loop) { l.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithWorker sets the worker id used in snapshots, logs and metrics.
func WithWorker(id int) Option {
	return func(l *Loop) { l.worker = id }
}

// WithReporter sets the snapshot callback.
func WithReporter(r Reporter) Option {
	return func(l *Loop) { l.report = r }
}

// NewLoop creates an evolution loop over geo.
func NewLoop(geo *geography.Geography, config optimization.Config, opts ...Option) (*Loop, error) {
	if err := config.ValidateFor(geo); err != nil {
		return nil, err
	}

	l := &Loop{
		geo:    geo,
		config: config,
		rates: MutationRates{
			Shuffle:        config.ShuffleChance,
			SequentialSwap: config.SequentialSwapChance,
			RandomSwap:     config.RandomSwapChance,
		},
		logger:  zap.NewNop(),
		state:   optimization.StateSeeding,
		history: make([]float64, 0, min(config.NumGenerations+1, maxHistoryPrealloc)),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.rng == nil {
		seed := config.RandomSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		l.rng = rand.New(rand.NewSource(seed))
	}
	l.logger = l.logger.With(zap.Int("worker", l.worker))

	return l, nil
}

// Seed installs the initial population and moves the loop to running.
func (l *Loop) Seed(pop *Population) {
	l.population = pop

	l.mu.Lock()
	l.state = optimization.StateRunning
	l.generation = 0
	l.mu.Unlock()

	l.record(pop, pop.Invalid())
}

// SeedRandom builds an initial population of independent random tours.
func (l *Loop) SeedRandom() error {
	pop, err := RandomPopulation(l.geo, l.config.PopulationSize, l.rng)
	if err != nil {
		return err
	}
	l.Seed(pop)
	return nil
}

// Solve runs the loop until a terminal state is reached.
// Cancellation of ctx, or Stop, is honoured between generations and is not
// an error: the best result so far is returned with StateCancelled.
func (l *Loop) Solve(ctx context.Context) (*optimization.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	if l.population == nil {
		if err := l.SeedRandom(); err != nil {
			return nil, err
		}
	}

	l.logger.Info("Starting evolution",
		zap.Int("population", l.config.PopulationSize),
		zap.Int("generations", l.config.NumGenerations),
		zap.Int("locations", l.geo.Len()),
	)

	for !l.State().Terminal() {
		if l.Generation() >= l.config.NumGenerations {
			l.setState(optimization.StateExhausted)
			break
		}

		select {
		case <-ctx.Done():
			l.setState(optimization.StateCancelled)
			continue
		default:
		}

		if err := l.Step(); err != nil {
			return nil, err
		}
	}

	result := l.Result()
	l.emit()
	l.metrics.ObserveTermination(result.State.String())

	l.logger.Info("Evolution finished",
		zap.String("state", result.State.String()),
		zap.Int("generation", result.Generations),
		zap.Float64("best_distance", result.BestDistance),
		zap.Int64("invalid_candidates", result.InvalidCandidates),
	)

	return result, nil
}

// Step produces one generation. A population in which every candidate
// describes the same route cannot breed distinct parents, so it is detected
// here, before parent selection, and ends the run.
func (l *Loop) Step() error {
	if l.population == nil {
		return optimization.WrapError(optimization.ErrUninitializedCandidate, "loop has no population").
			WithOperation("Loop.Step").
			WithComponent("genetic")
	}
	if l.State().Terminal() {
		return nil
	}

	if l.population.Collapsed() {
		l.setState(optimization.StateCollapsed)
		l.logger.Warn("Population collapsed to a single route",
			zap.Int("generation", l.Generation()),
			zap.Float64("best_distance", l.bestDistance()),
		)
		return nil
	}

	offspring := l.breed(l.population)
	next, err := NewPopulation(l.geo, offspring)
	if err != nil {
		return err
	}

	invalid := 0
	for _, c := range offspring {
		if c.Penalized() {
			invalid++
		}
	}

	l.population = next
	l.mu.Lock()
	l.generation++
	generation := l.generation
	l.mu.Unlock()

	l.record(next, invalid)

	if l.stagnated() {
		l.setState(optimization.StateStagnant)
		l.logger.Info("Best distance stagnated",
			zap.Int("generation", generation),
			zap.Int("window", l.config.StagnationWindow),
		)
		return nil
	}

	if l.config.SnapshotInterval > 0 && generation%l.config.SnapshotInterval == 0 {
		l.emit()
	}
	return nil
}

// breed builds the next generation: elite first, then mutated offspring of
// fitness-proportionally selected, structurally distinct parents.
func (l *Loop) breed(pop *Population) []*Candidate {
	size := l.config.PopulationSize
	next := make([]*Candidate, 0, size+1)
	next = append(next, pop.Elite(l.config.EliteAmount)...)

	ranked := pop.Ranked()
	for len(next) < size {
		first := ranked[pop.Select(l.rng.Float64())]
		second := ranked[pop.Select(l.rng.Float64())]
		for first.SameRoute(second) {
			second = ranked[pop.Select(l.rng.Float64())]
		}

		childA, childB := Crossover(l.rng, first.sequence, second.sequence)
		for _, child := range [][]int{childA, childB} {
			kind := Mutate(l.rng, child, l.rates)
			if kind != MutationNone {
				l.metrics.ObserveMutation(kind.String())
			}
			next = append(next, &Candidate{geo: l.geo, sequence: child})
		}
	}
	return next[:size]
}

func (l *Loop) record(pop *Population, invalid int) {
	stats := pop.Stats()
	best := pop.Best()

	l.mu.Lock()
	if l.best == nil || best.mustDistance() < l.best.mustDistance() {
		l.best = best
	}
	l.history = append(l.history, l.best.mustDistance())
	l.lastStats = stats
	l.invalid += int64(invalid)
	generation := l.generation
	bestDistance := l.best.mustDistance()
	l.mu.Unlock()

	if invalid > 0 {
		l.logger.Warn("Penalized invalid candidates",
			zap.Int("generation", generation),
			zap.Int("count", invalid),
		)
		l.metrics.ObserveInvalid(invalid)
	}
	l.metrics.ObserveGeneration(l.worker, bestDistance)
}

// stagnated reports whether the best distance is unchanged over the
// configured window.
func (l *Loop) stagnated() bool {
	window := l.config.StagnationWindow
	if window <= 0 {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.history)
	return n > window && l.history[n-1-window] == l.history[n-1]
}

func (l *Loop) emit() {
	if l.report == nil {
		return
	}
	snap := l.Best()
	if snap == nil {
		return
	}
	l.logger.Debug("Emitting snapshot",
		zap.Int("generation", snap.Generation),
		zap.Float64("best_distance", snap.BestDistance),
	)
	l.report(*snap)
}

func (l *Loop) setState(s optimization.State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) bestDistance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.best == nil {
		return 0
	}
	return l.best.mustDistance()
}

// State returns the current lifecycle state.
func (l *Loop) State() optimization.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Generation returns the number of generations produced after seeding.
func (l *Loop) Generation() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.generation
}

// Population returns the current population.
func (l *Loop) Population() *Population {
	return l.population
}

// BestCandidate returns the best candidate ever observed.
func (l *Loop) BestCandidate() *Candidate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.best
}

// Best returns a snapshot of the best candidate ever observed.
func (l *Loop) Best() *optimization.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.best == nil {
		return nil
	}
	return &optimization.Snapshot{
		Worker:       l.worker,
		Generation:   l.generation,
		BestDistance: l.best.mustDistance(),
		BestSequence: l.best.Sequence(),
	}
}

// History returns the best-ever distance after each generation, starting
// with the seeded population.
func (l *Loop) History() []float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]float64(nil), l.history...)
}

// LastStats returns the distance statistics of the latest generation.
func (l *Loop) LastStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastStats
}

// InvalidCandidates returns how many penalized candidates were produced.
func (l *Loop) InvalidCandidates() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.invalid
}

// Stop requests the loop to stop at the next generation boundary.
func (l *Loop) Stop() {
	l.mu.RLock()
	cancel := l.cancel
	l.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Result returns the current outcome of the loop.
func (l *Loop) Result() *optimization.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := &optimization.Result{
		Generations:       l.generation,
		State:             l.state,
		History:           append([]float64(nil), l.history...),
		InvalidCandidates: l.invalid,
		Workers:           1,
	}
	if l.best != nil {
		result.BestDistance = l.best.mustDistance()
		result.BestSequence = l.best.Sequence()
		result.BestTour = l.best.Tour()
	}
	return result
}

// RunSingle runs one evolution loop over geo.
func RunSingle(ctx context.Context, geo *geography.Geography, config optimization.Config, opts ...Option) (*optimization.Result, error) {
	loop, err := NewLoop(geo, config, opts...)
	if err != nil {
		return nil, err
	}
	return loop.Solve(ctx)
}

var _ optimization.Solver = (*Loop)(nil)
