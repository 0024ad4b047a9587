// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。实现 kernel.Recorder 与 cache.Observer。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 内核指标
	factsAdded       *prometheus.CounterVec
	inferences       *prometheus.CounterVec
	derivedFacts     *prometheus.CounterVec
	inferenceLatency *prometheus.HistogramVec
	plans            *prometheus.CounterVec
	planNodes        *prometheus.HistogramVec
	planLatency      *prometheus.HistogramVec
	memoryStores     *prometheus.CounterVec
	memoryRecalls    *prometheus.CounterVec
	memoryRecallHits *prometheus.HistogramVec
	memoryEvictions  *prometheus.CounterVec
	actions          *prometheus.CounterVec
	actionLatency    *prometheus.HistogramVec
	cycles           *prometheus.CounterVec
	cycleLatency     prometheus.Histogram

	// 内核请求队列
	queueLength   prometheus.Gauge
	queueCapacity prometheus.Gauge

	// 快照存储
	snapshotOps     *prometheus.CounterVec
	snapshotLatency *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// Option 配置 Collector
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer 指定注册表，默认使用 prometheus.DefaultRegisterer
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger, opts ...Option) *Collector {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(o.registerer)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	c.httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
	c.httpRequestSize = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_size_bytes",
		Help:      "HTTP request size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
	}, []string{"method", "path"})
	c.httpResponseSize = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
	}, []string{"method", "path"})

	// 推理
	c.factsAdded = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "facts_added_total",
		Help:      "Facts and rules added to the knowledge base",
	}, []string{"kind"})
	c.inferences = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "inferences_total",
		Help:      "Inference runs",
	}, []string{"method"})
	c.derivedFacts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "derived_facts_total",
		Help:      "Facts derived by inference",
	}, []string{"method"})
	c.inferenceLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "inference_duration_seconds",
		Help:      "Inference duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"method"})

	// 规划
	c.plans = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "plans_total",
		Help:      "Planning requests by outcome",
	}, []string{"algorithm", "found"})
	c.planNodes = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "plan_nodes_explored",
		Help:      "Search nodes expanded per planning request",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"algorithm"})
	c.planLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "plan_duration_seconds",
		Help:      "Planning duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"algorithm"})

	// 记忆
	c.memoryStores = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "memory_stores_total",
		Help:      "Items stored per memory type",
	}, []string{"type"})
	c.memoryRecalls = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "memory_recalls_total",
		Help:      "Recall requests per memory type",
	}, []string{"type"})
	c.memoryRecallHits = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "memory_recall_hits",
		Help:      "Items returned per recall",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"type"})
	c.memoryEvictions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "memory_evictions_total",
		Help:      "Items evicted when a memory store was full",
	}, []string{"type"})

	// 执行与循环
	c.actions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "actions_total",
		Help:      "Executed actions by status",
	}, []string{"status"})
	c.actionLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "action_duration_seconds",
		Help:      "Action duration in seconds, retries included",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})
	c.cycles = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "cycles_total",
		Help:      "Cognitive cycles by outcome",
	}, []string{"success", "replanned"})
	c.cycleLatency = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "cycle_duration_seconds",
		Help:      "Cognitive cycle duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	c.queueLength = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "queue_length",
		Help:      "Requests waiting for the kernel owner",
	})
	c.queueCapacity = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "kernel",
		Name:      "queue_capacity",
		Help:      "Capacity of the kernel request queue",
	})

	c.snapshotOps = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "operations_total",
		Help:      "Snapshot store operations",
	}, []string{"backend", "operation", "status"})
	c.snapshotLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "operation_duration_seconds",
		Help:      "Snapshot store operation duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// 缓存指标
	c.cacheHits = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Total number of cache hits",
	}, []string{"cache_type"})
	c.cacheMisses = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Total number of cache misses",
	}, []string{"cache_type"})

	// 数据库指标
	c.dbConnectionsOpen = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_open",
		Help:      "Number of open database connections",
	}, []string{"database"})
	c.dbConnectionsIdle = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_idle",
		Help:      "Number of idle database connections",
	}, []string{"database"})
	c.dbQueryDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_seconds",
		Help:      "Database query duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"database", "operation"})

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🧠 内核指标记录
// =============================================================================

func (c *Collector) RecordFactAdded(kind string) {
	c.factsAdded.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordInference(method string, derived int, duration time.Duration) {
	c.inferences.WithLabelValues(method).Inc()
	c.derivedFacts.WithLabelValues(method).Add(float64(derived))
	c.inferenceLatency.WithLabelValues(method).Observe(duration.Seconds())
}

func (c *Collector) RecordPlan(algorithm string, found bool, nodesExplored int, duration time.Duration) {
	c.plans.WithLabelValues(algorithm, boolLabel(found)).Inc()
	c.planNodes.WithLabelValues(algorithm).Observe(float64(nodesExplored))
	c.planLatency.WithLabelValues(algorithm).Observe(duration.Seconds())
}

func (c *Collector) RecordMemoryStore(memoryType string) {
	c.memoryStores.WithLabelValues(memoryType).Inc()
}

func (c *Collector) RecordMemoryRecall(memoryType string, hits int) {
	c.memoryRecalls.WithLabelValues(memoryType).Inc()
	c.memoryRecallHits.WithLabelValues(memoryType).Observe(float64(hits))
}

func (c *Collector) RecordMemoryEviction(memoryType string) {
	c.memoryEvictions.WithLabelValues(memoryType).Inc()
}

func (c *Collector) RecordAction(status string, duration time.Duration) {
	c.actions.WithLabelValues(status).Inc()
	c.actionLatency.WithLabelValues(status).Observe(duration.Seconds())
}

func (c *Collector) RecordCycle(success bool, replanned bool, duration time.Duration) {
	c.cycles.WithLabelValues(boolLabel(success), boolLabel(replanned)).Inc()
	c.cycleLatency.Observe(duration.Seconds())
}

// RecordQueue 记录内核请求队列深度
func (c *Collector) RecordQueue(length, capacity int) {
	c.queueLength.Set(float64(length))
	c.queueCapacity.Set(float64(capacity))
}

// RecordSnapshotOp 记录一次快照存储操作
func (c *Collector) RecordSnapshotOp(backend, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.snapshotOps.WithLabelValues(backend, operation, status).Inc()
	c.snapshotLatency.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
