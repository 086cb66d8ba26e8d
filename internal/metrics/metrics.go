// Package metrics exposes Prometheus collectors for tour searches.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tourga"

// Metrics holds the collectors updated by evolution loops and coordinators.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Generations       *prometheus.CounterVec
	InvalidCandidates prometheus.Counter
	Mutations         *prometheus.CounterVec
	Terminations      *prometheus.CounterVec
	Snapshots         prometheus.Counter
	BestDistance      *prometheus.GaugeVec
	ActiveWorkers     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generations produced, by worker.",
		}, []string{"worker"}),
		InvalidCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_candidates_total",
			Help:      "Candidates that failed the permutation check and were penalized.",
		}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Mutations applied to offspring, by kind.",
		}, []string{"kind"}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Finished evolution loops, by final state.",
		}, []string{"state"}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_received_total",
			Help:      "Worker snapshots drained by coordinators.",
		}),
		BestDistance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_distance",
			Help:      "Best tour distance known, by worker (\"global\" for the coordinator).",
		}, []string{"worker"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Search workers currently running.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.Generations, m.InvalidCandidates, m.Mutations, m.Terminations,
			m.Snapshots, m.BestDistance, m.ActiveWorkers,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// WorkerLabel formats a worker id for the worker label.
func WorkerLabel(worker int) string {
	return strconv.Itoa(worker)
}

// ObserveGeneration records one finished generation of a worker.
func (m *Metrics) ObserveGeneration(worker int, best float64) {
	if m == nil {
		return
	}
	label := WorkerLabel(worker)
	m.Generations.WithLabelValues(label).Inc()
	m.BestDistance.WithLabelValues(label).Set(best)
}

// ObserveInvalid records penalized candidates.
func (m *Metrics) ObserveInvalid(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.InvalidCandidates.Add(float64(n))
}

// ObserveMutation records an applied mutation.
func (m *Metrics) ObserveMutation(kind string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(kind).Inc()
}

// ObserveTermination records the final state of a loop.
func (m *Metrics) ObserveTermination(state string) {
	if m == nil {
		return
	}
	m.Terminations.WithLabelValues(state).Inc()
}

// ObserveSnapshot records a drained worker snapshot.
func (m *Metrics) ObserveSnapshot() {
	if m == nil {
		return
	}
	m.Snapshots.Inc()
}

// ObserveGlobalBest records the coordinator's best distance.
func (m *Metrics) ObserveGlobalBest(best float64) {
	if m == nil {
		return
	}
	m.BestDistance.WithLabelValues("global").Set(best)
}

// WorkerStarted and WorkerStopped track running workers.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Inc()
}

func (m *Metrics) WorkerStopped() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Dec()
}
