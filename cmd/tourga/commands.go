package main

import (
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/tourga/internal/config"
	"github.com/copyleftdev/tourga/internal/logging"
	"github.com/copyleftdev/tourga/internal/optimization"
	"github.com/copyleftdev/tourga/internal/optimization/genetic"
	"github.com/copyleftdev/tourga/internal/optimization/geography"
	"github.com/copyleftdev/tourga/internal/optimization/parallel"
	"github.com/copyleftdev/tourga/internal/render"
)

// solveOptions holds the flags of the solve command.
type solveOptions struct {
	locations     int
	population    int
	generations   int
	elite         int
	workers       string
	seed          int64
	snapshotEvery int
	stagnation    int
	width         int
	height        int
	avoidCenter   bool
	plot          string
	historyPlot   string
	logLevel      string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tourga",
		Short:         "Find short delivery tours with a genetic algorithm",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSolveCmd())
	return root
}

func newSolveCmd() *cobra.Command {
	opts := &solveOptions{}

	// Flag defaults come from the environment
	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}
	evo := cfg.Evolution

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Generate a random map and search for the shortest tour from HQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return runSolve(cmd, cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.locations, "locations", "n", evo.NumLocations, "number of locations to visit")
	flags.IntVarP(&opts.population, "population", "p", evo.PopulationSize, "candidates per generation")
	flags.IntVarP(&opts.generations, "generations", "g", evo.Generations, "generation budget per worker")
	flags.IntVar(&opts.elite, "elite", evo.EliteAmount, "distinct best candidates kept each generation")
	flags.StringVarP(&opts.workers, "workers", "w", strconv.Itoa(evo.Workers), `parallel workers, or "max" for all CPUs but one`)
	flags.Int64Var(&opts.seed, "seed", evo.Seed, "random seed; 0 picks one from the clock")
	flags.IntVar(&opts.snapshotEvery, "snapshot-every", evo.SnapshotInterval, "generations between worker progress reports")
	flags.IntVar(&opts.stagnation, "stagnation", evo.StagnationWindow, "stop after this many generations without improvement; 0 disables")
	flags.IntVar(&opts.width, "width", cfg.Map.Width, "map width")
	flags.IntVar(&opts.height, "height", cfg.Map.Height, "map height")
	flags.BoolVar(&opts.avoidCenter, "avoid-center", cfg.Map.AvoidCenter, "keep locations away from the map centre")
	flags.StringVar(&opts.plot, "plot", "", "write the best tour to this image file")
	flags.StringVar(&opts.historyPlot, "history-plot", "", "write the best distance history to this image file")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level for search progress (debug, info, warn, error)")
	return cmd
}

// parseWorkers accepts a positive count or "max".
func parseWorkers(s string) (int, error) {
	requested := parallel.MaxWorkers
	if !strings.EqualFold(s, "max") {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid worker count %q", s)
		}
		if n == 0 {
			return 0, optimization.ConfigErrorf("parseWorkers", "worker count must be positive or \"max\", got 0")
		}
		requested = n
	}
	return parallel.ResolveWorkers(requested)
}

func runSolve(cmd *cobra.Command, cfg *config.Config, opts *solveOptions) error {
	out := cmd.OutOrStdout()

	logger, err := logging.NewLogger(&logging.Config{
		Level:  opts.logLevel,
		Format: cfg.Logging.Format,
		Output: "stderr",
	})
	if err != nil {
		return err
	}
	engine := logging.NewZapLogger(logger)

	workers, err := parseWorkers(opts.workers)
	if err != nil {
		return err
	}

	search := cfg.Evolution.OptimizerConfig()
	search.NumLocations = opts.locations
	search.PopulationSize = opts.population
	search.NumGenerations = opts.generations
	search.EliteAmount = opts.elite
	search.SnapshotInterval = opts.snapshotEvery
	search.StagnationWindow = opts.stagnation
	search.RandomSeed = opts.seed
	if err := search.Validate(); err != nil {
		return err
	}

	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	geo, err := geography.Generate(rand.New(rand.NewSource(seed)), geography.GenerateOptions{
		Width:        opts.width,
		Height:       opts.height,
		NumLocations: opts.locations,
		AvoidCenter:  opts.avoidCenter,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Map: %d locations on %dx%d, %s possible routes\n",
		geo.Len(), opts.width, opts.height, geo.NumPossibleSolutions())
	fmt.Fprintf(out, "Searching with %d worker(s), population %d, %d generations\n",
		workers, search.PopulationSize, search.NumGenerations)

	start := time.Now()
	var result *optimization.Result
	if workers == 1 {
		result, err = genetic.RunSingle(cmd.Context(), geo, search,
			genetic.WithLogger(engine))
	} else {
		result, err = parallel.RunParallel(cmd.Context(), geo, search, workers,
			parallel.WithLogger(engine),
			parallel.WithOnUpdate(func(s optimization.Snapshot) {
				engine.Info("New global best",
					zap.Int("worker", s.Worker),
					zap.Int("generation", s.Generation),
					zap.Float64("best_distance", s.BestDistance),
				)
			}),
		)
	}
	if err != nil {
		return err
	}

	printResult(out, geo, result, time.Since(start))

	plotOpts := render.DefaultOptions()
	plotOpts.MapWidth, plotOpts.MapHeight = float64(opts.width), float64(opts.height)
	if opts.plot != "" {
		p, err := render.TourPlot(geo, result.BestTour, result.BestDistance, plotOpts)
		if err != nil {
			return err
		}
		if err := render.Save(p, opts.plot, plotOpts); err != nil {
			return err
		}
		fmt.Fprintf(out, "Tour plot: %s\n", opts.plot)
	}
	if opts.historyPlot != "" {
		p, err := render.HistoryPlot(result.History, fmt.Sprintf("Best distance (%d workers)", result.Workers))
		if err != nil {
			return err
		}
		if err := render.Save(p, opts.historyPlot, plotOpts); err != nil {
			return err
		}
		fmt.Fprintf(out, "History plot: %s\n", opts.historyPlot)
	}
	return nil
}

func printResult(out io.Writer, geo *geography.Geography, result *optimization.Result, elapsed time.Duration) {
	names := genetic.NewCandidate(geo, result.BestSequence).Names()
	fmt.Fprintf(out, "Finished: %s after %d generations in %s\n",
		result.State, result.Generations, elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Best distance: %.2f\n", result.BestDistance)
	fmt.Fprintf(out, "Route: %s\n", strings.Join(names, " -> "))
	if result.InvalidCandidates > 0 {
		fmt.Fprintf(out, "Penalized candidates: %d\n", result.InvalidCandidates)
	}
}
