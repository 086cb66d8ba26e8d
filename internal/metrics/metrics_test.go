package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveGeneration(0, 42)
	m.ObserveGeneration(0, 40)
	m.ObserveInvalid(3)
	m.ObserveInvalid(0)
	m.ObserveMutation("shuffle")
	m.ObserveTermination("exhausted")
	m.ObserveSnapshot()
	m.ObserveGlobalBest(39)
	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerStopped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Generations.WithLabelValues("0")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.BestDistance.WithLabelValues("0")))
	assert.Equal(t, 39.0, testutil.ToFloat64(m.BestDistance.WithLabelValues("global")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.InvalidCandidates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mutations.WithLabelValues("shuffle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Terminations.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Snapshots))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveWorkers))

	// Registering a second set on the same registry collides
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveGeneration(1, 1)
		m.ObserveInvalid(1)
		m.ObserveMutation("none")
		m.ObserveTermination("collapsed")
		m.ObserveSnapshot()
		m.ObserveGlobalBest(1)
		m.WorkerStarted()
		m.WorkerStopped()
	})
}
