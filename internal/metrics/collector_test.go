package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
)

var _ kernel.Recorder = (*Collector)(nil)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", zap.NewNop(), WithRegisterer(reg)), reg
}

func TestNewCollector(t *testing.T) {
	c, reg := newTestCollector(t)
	require.NotNil(t, c)

	c.RecordHTTPRequest("GET", "/v1/facts", 200, time.Millisecond, 0, 0)
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewCollector_NilLogger(t *testing.T) {
	c := NewCollector("test", nil, WithRegisterer(prometheus.NewRegistry()))
	assert.NotNil(t, c.logger)
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("dup", zap.NewNop(), WithRegisterer(reg))
	assert.Panics(t, func() {
		NewCollector("dup", zap.NewNop(), WithRegisterer(reg))
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("GET", "/v1/facts", 200, 100*time.Millisecond, 1024, 2048)
	c.RecordHTTPRequest("POST", "/v1/plan", 422, 5*time.Millisecond, 64, 128)
	c.RecordHTTPRequest("POST", "/v1/plan", 503, 5*time.Millisecond, 64, 128)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/v1/facts", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/v1/plan", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/v1/plan", "5xx")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.httpRequestDuration))
}

func TestCollector_KernelRecorder(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordFactAdded("fact")
	c.RecordFactAdded("fact")
	c.RecordFactAdded("rule")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.factsAdded.WithLabelValues("fact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.factsAdded.WithLabelValues("rule")))

	c.RecordInference("forward_chaining", 3, time.Millisecond)
	c.RecordInference("forward_chaining", 2, time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.inferences.WithLabelValues("forward_chaining")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.derivedFacts.WithLabelValues("forward_chaining")))

	c.RecordPlan("a_star", true, 12, time.Millisecond)
	c.RecordPlan("a_star", false, 100, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.plans.WithLabelValues("a_star", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.plans.WithLabelValues("a_star", "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.planNodes))

	c.RecordMemoryStore("episodic")
	c.RecordMemoryRecall("episodic", 4)
	c.RecordMemoryEviction("working")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.memoryStores.WithLabelValues("episodic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.memoryRecalls.WithLabelValues("episodic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.memoryEvictions.WithLabelValues("working")))

	c.RecordAction("success", 10*time.Millisecond)
	c.RecordAction("timeout", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("timeout")))

	c.RecordCycle(true, false, time.Millisecond)
	c.RecordCycle(true, true, time.Millisecond)
	c.RecordCycle(false, true, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("true", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("true", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("false", "true")))
}

func TestCollector_RecordQueue(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordQueue(3, 64)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queueLength))
	assert.Equal(t, 64.0, testutil.ToFloat64(c.queueCapacity))

	c.RecordQueue(0, 64)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.queueLength))
}

func TestCollector_RecordSnapshotOp(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordSnapshotOp("redis", "save", nil, time.Millisecond)
	c.RecordSnapshotOp("redis", "load", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotOps.WithLabelValues("redis", "save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotOps.WithLabelValues("redis", "load", "error")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordCacheHit("snapshot")
	c.RecordCacheHit("snapshot")
	c.RecordCacheMiss("snapshot")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("snapshot")))
}

func TestCollector_Database(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordDBConnections("postgres", 10, 5)
	c.RecordDBQuery("postgres", "SELECT", 20*time.Millisecond)

	assert.Equal(t, 10.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("postgres")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.dbQueryDuration))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			c.RecordInference("forward_chaining", 1, time.Millisecond)
			c.RecordCacheHit("snapshot")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.derivedFacts.WithLabelValues("forward_chaining")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("snapshot")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
