// Package parallel runs several independently seeded evolution loops over
// one geography and aggregates their progress into a single global best.
package parallel

import (
	"context"
	"math/rand"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/copyleftdev/tourga/internal/metrics"
	"github.com/copyleftdev/tourga/internal/optimization"
	"github.com/copyleftdev/tourga/internal/optimization/genetic"
	"github.com/copyleftdev/tourga/internal/optimization/geography"
)

const defaultPollInterval = 100 * time.Millisecond

// Coordinator runs a fixed number of workers, each an evolution loop with
// its own population and random stream. Workers report snapshots through
// latest-only mailboxes that the coordinator drains on a ticker.
type Coordinator struct {
	geo      *geography.Geography
	config   optimization.Config
	workers  int
	logger   *zap.Logger
	metrics  *metrics.Metrics
	onUpdate func(optimization.Snapshot)

	mu      sync.RWMutex
	state   optimization.State
	best    *optimization.Snapshot
	latest  []*optimization.Snapshot
	history []float64
	cancel  context.CancelFunc
	stopped bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger shared by the coordinator and its workers.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors shared with the workers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithOnUpdate registers a callback invoked each time the global best
// improves. It runs on the coordinator goroutine and must not block.
func WithOnUpdate(fn func(optimization.Snapshot)) Option {
	return func(c *Coordinator) { c.onUpdate = fn }
}

// NewCoordinator validates the configuration and worker count.
func NewCoordinator(geo *geography.Geography, config optimization.Config, workers int, opts ...Option) (*Coordinator, error) {
	if workers < 1 {
		return nil, optimization.ConfigErrorf("parallel.NewCoordinator", "worker count must be positive, got %d", workers)
	}
	if err := config.ValidateFor(geo); err != nil {
		return nil, err
	}

	c := &Coordinator{
		geo:     geo,
		config:  config,
		workers: workers,
		logger:  zap.NewNop(),
		state:   optimization.StateSeeding,
		latest:  make([]*optimization.Snapshot, workers),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Solve starts every worker and blocks until all of them reach a terminal
// state. Cancelling ctx, or calling Stop, stops the workers at their next
// generation boundary; the best result so far is returned without error.
func (c *Coordinator) Solve(ctx context.Context) (*optimization.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	c.state = optimization.StateRunning
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		cancel()
	}

	base := c.config.RandomSeed
	if base == 0 {
		base = time.Now().UnixNano()
	}

	boxes := make([]*mailbox, c.workers)
	loops := make([]*genetic.Loop, c.workers)
	for i := range loops {
		boxes[i] = newMailbox()
		seed := deriveSeed(base, i)
		loop, err := genetic.NewLoop(c.geo, c.config,
			genetic.WithRNG(rand.New(rand.NewSource(seed))),
			genetic.WithWorker(i),
			genetic.WithLogger(c.logger),
			genetic.WithMetrics(c.metrics),
			genetic.WithReporter(boxes[i].post),
		)
		if err != nil {
			return nil, err
		}
		loops[i] = loop
	}

	c.logger.Info("Starting parallel search",
		zap.Int("workers", c.workers),
		zap.Int("population", c.config.PopulationSize),
		zap.Int("generations", c.config.NumGenerations),
		zap.Int("locations", c.geo.Len()),
	)

	results := make([]*optimization.Result, c.workers)
	g, gctx := errgroup.WithContext(ctx)
	for i, loop := range loops {
		i, loop := i, loop
		g.Go(func() error {
			c.metrics.WorkerStarted()
			defer c.metrics.WorkerStopped()

			res, err := loop.Solve(gctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	ticker := time.NewTicker(c.pollInterval())
	defer ticker.Stop()

	var err error
wait:
	for {
		select {
		case <-ticker.C:
			c.drain(boxes)
		case err = <-done:
			break wait
		}
	}
	c.drain(boxes)

	if err != nil {
		c.setState(optimization.StateCancelled)
		c.logger.Error("Parallel search failed", zap.Error(err))
		return nil, err
	}

	// Final results are folded in directly so the outcome does not depend
	// on poll timing.
	improved := false
	for i, res := range results {
		if res == nil || res.BestSequence == nil {
			continue
		}
		if c.observe(optimization.Snapshot{
			Worker:       i,
			Generation:   res.Generations,
			BestDistance: res.BestDistance,
			BestSequence: res.BestSequence,
		}) {
			improved = true
		}
	}
	if improved || len(c.History()) == 0 {
		c.recordHistory()
	}

	result := c.result(results)
	c.setState(result.State)

	c.logger.Info("Parallel search finished",
		zap.String("state", result.State.String()),
		zap.Int("generation", result.Generations),
		zap.Float64("best_distance", result.BestDistance),
		zap.Int64("invalid_candidates", result.InvalidCandidates),
	)
	return result, nil
}

// drain reads every pending snapshot without blocking.
func (c *Coordinator) drain(boxes []*mailbox) {
	received := false
	for _, box := range boxes {
		snap, ok := box.poll()
		if !ok {
			continue
		}
		c.metrics.ObserveSnapshot()
		c.observe(snap)
		received = true
	}
	if received {
		c.recordHistory()
	}
}

// observe stores a worker's latest snapshot and reports whether it
// improved the global best. The global best never gets worse.
func (c *Coordinator) observe(snap optimization.Snapshot) bool {
	snap.BestSequence = slices.Clone(snap.BestSequence)

	c.mu.Lock()
	if snap.Worker >= 0 && snap.Worker < len(c.latest) {
		latest := snap
		c.latest[snap.Worker] = &latest
	}
	improved := c.best == nil || snap.BestDistance < c.best.BestDistance
	if improved {
		best := snap
		c.best = &best
	}
	c.mu.Unlock()

	if !improved {
		return false
	}

	c.metrics.ObserveGlobalBest(snap.BestDistance)
	c.logger.Debug("Global best improved",
		zap.Int("worker", snap.Worker),
		zap.Int("generation", snap.Generation),
		zap.Float64("best_distance", snap.BestDistance),
	)
	if c.onUpdate != nil {
		update := snap
		update.BestSequence = slices.Clone(snap.BestSequence)
		c.onUpdate(update)
	}
	return true
}

func (c *Coordinator) recordHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.best != nil {
		c.history = append(c.history, c.best.BestDistance)
	}
}

func (c *Coordinator) result(results []*optimization.Result) *optimization.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := &optimization.Result{
		State:   optimization.StateExhausted,
		History: append([]float64(nil), c.history...),
		Workers: c.workers,
	}

	cancelled := false
	for _, res := range results {
		if res == nil {
			continue
		}
		result.Generations = max(result.Generations, res.Generations)
		result.InvalidCandidates += res.InvalidCandidates
		if res.State == optimization.StateCancelled {
			cancelled = true
		}
	}

	if c.best != nil {
		result.BestDistance = c.best.BestDistance
		result.BestSequence = slices.Clone(c.best.BestSequence)
		result.BestTour = genetic.NewCandidate(c.geo, c.best.BestSequence).Tour()
		if w := c.best.Worker; w >= 0 && w < len(results) && results[w] != nil {
			result.State = results[w].State
		}
	}
	if cancelled {
		result.State = optimization.StateCancelled
	}
	return result
}

func (c *Coordinator) pollInterval() time.Duration {
	if c.config.PollInterval <= 0 {
		return defaultPollInterval
	}
	return c.config.PollInterval
}

func (c *Coordinator) setState(s optimization.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Workers returns the number of workers the coordinator runs.
func (c *Coordinator) Workers() int {
	return c.workers
}

// State returns the coordinator's lifecycle state.
func (c *Coordinator) State() optimization.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Best returns the global best snapshot, or nil before any worker reported.
func (c *Coordinator) Best() *optimization.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.best == nil {
		return nil
	}
	best := *c.best
	best.BestSequence = slices.Clone(c.best.BestSequence)
	return &best
}

// Latest returns the most recent snapshot of every worker that has reported.
func (c *Coordinator) Latest() []optimization.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]optimization.Snapshot, 0, len(c.latest))
	for _, s := range c.latest {
		if s == nil {
			continue
		}
		snap := *s
		snap.BestSequence = slices.Clone(s.BestSequence)
		out = append(out, snap)
	}
	return out
}

// Generation returns the highest generation reported by any worker.
func (c *Coordinator) Generation() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	generation := 0
	for _, s := range c.latest {
		if s != nil {
			generation = max(generation, s.Generation)
		}
	}
	return generation
}

// History returns the global best distance after every poll that received
// at least one snapshot.
func (c *Coordinator) History() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]float64(nil), c.history...)
}

// Stop requests every worker to stop at its next generation boundary.
// Calling Stop before Solve makes Solve return right after seeding.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RunParallel runs workers independent evolution loops over geo and returns
// the best tour found by any of them.
func RunParallel(ctx context.Context, geo *geography.Geography, config optimization.Config, workers int, opts ...Option) (*optimization.Result, error) {
	c, err := NewCoordinator(geo, config, workers, opts...)
	if err != nil {
		return nil, err
	}
	return c.Solve(ctx)
}

var _ optimization.Solver = (*Coordinator)(nil)
