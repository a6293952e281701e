package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegistry("ragflow", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/ask", 200, 100*time.Millisecond, 128, 256)
	c.RecordHTTPRequest("POST", "/ask", 200, 50*time.Millisecond, 64, 128)
	c.RecordHTTPRequest("POST", "/ask", 502, 10*time.Millisecond, 64, 32)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/ask", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/ask", "5xx")))
}

func TestCollector_PipelineMetrics(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ObserveStep("reason", "ok", 300*time.Millisecond)
	c.ObserveStep("reason", "error", time.Second)
	c.ObserveRun("invoke", "ok", 2*time.Second)
	c.ObserveRun("stream", "error", time.Second)
	c.IncCheckpointFailure("recall_memory")
	c.IncCheckpointFailure("recall_memory")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("invoke", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("stream", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.checkpointFailures.WithLabelValues("recall_memory")))

	expected := `
# HELP ragflow_checkpoint_failures_total Total number of failed checkpoint writes
# TYPE ragflow_checkpoint_failures_total counter
ragflow_checkpoint_failures_total{step="recall_memory"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ragflow_checkpoint_failures_total"))

	count, err := testutil.GatherAndCount(reg, "ragflow_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCollector_RecordIngest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordIngest("p1", 12, time.Second, nil)
	c.RecordIngest("p1", 3, time.Second, nil)
	c.RecordIngest("p2", 0, time.Second, errors.New("boom"))

	assert.Equal(t, 15.0, testutil.ToFloat64(c.ingestChunks.WithLabelValues("p1")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.ingestChunks))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordDBConnections("postgres", 7, 3)

	assert.Equal(t, 7.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectorWithRegistry("dup", reg, zap.NewNop())
	assert.Panics(t, func() { NewCollectorWithRegistry("dup", reg, zap.NewNop()) })
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		204: "2xx",
		301: "3xx",
		404: "4xx",
		503: "5xx",
		100: "unknown",
	}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code), code)
	}
}
