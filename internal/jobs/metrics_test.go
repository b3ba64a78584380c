package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("cost_refresh").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("cost_refresh").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("cost_refresh", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("cost_refresh", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("cost_refresh")))
}

func TestPipelineCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveReconcileFault("malformed")
	m.ObserveReconcileFault("")
	m.ObserveCostLookup("fetched", 3)
	m.ObserveCostLookup("fetched", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("other")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.costLookups.WithLabelValues("fetched")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveReconcileFault("malformed")
	m.ObserveCostLookup("hit", 2)
	assert.NoError(t, m.Track("x").End(nil))
}
