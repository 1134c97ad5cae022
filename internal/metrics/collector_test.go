package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("consortium", prometheus.NewRegistry(), nil)
}

func TestCollector_RecordTask(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)

	c.RecordTask("gpt-4o", "")
	c.RecordTask("gpt-4o", "")
	c.RecordTask("gpt-4o", "TIMEOUT")

	assert.Equal(t, 3.0, testutil.ToFloat64(c.tasksTotal.WithLabelValues("gpt-4o")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.taskFailures.WithLabelValues("gpt-4o", "TIMEOUT")))
}

func TestCollector_RecordRoundAndArbiter(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)

	c.RecordRound(2 * time.Second)
	c.RecordArbiter("ok", time.Second)
	c.RecordArbiter("error", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.roundsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.arbiterCalls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.arbiterCalls.WithLabelValues("error")))
	assert.Equal(t, uint64(1), sampleCount(t, c.roundDuration))
	assert.Equal(t, uint64(2), sampleCount(t, c.arbiterDuration))
}

func TestCollector_RecordRun(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)

	c.RecordRun("done", 0.85, 2, 10*time.Second)
	c.RecordRun("failed", 0, 1, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("failed")))

	// confidence observed only for converged runs
	assert.Equal(t, uint64(1), sampleCount(t, c.finalConfidence))
	assert.Equal(t, uint64(2), sampleCount(t, c.runDuration))
	assert.Equal(t, uint64(2), sampleCount(t, c.runRounds))
}

func TestCollector_RecordDroppedRecord(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.RecordDroppedRecord()
	c.RecordDroppedRecord()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.recordsDropped))
}

func TestNewCollector_RegistersMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCollector("scoped", reg, nil)
	require.NotNil(t, c)

	// re-registering the same names on the same registry must panic, which
	// proves registration actually happened
	assert.Panics(t, func() { NewCollector("scoped", reg, nil) })
}
