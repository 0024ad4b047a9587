package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/agentkernel/agent/kernel"
)

const instrumentationName = "github.com/BaSui01/agentkernel/agent/kernel"

var _ kernel.Recorder = (*KernelRecorder)(nil)

// KernelRecorder 把内核事件记录为 OTel 指标，经 OTLP 导出。
// 与 Prometheus 的 metrics.Collector 并行挂在 kernel.MultiRecorder 上。
type KernelRecorder struct {
	facts        metric.Int64Counter
	inferences   metric.Int64Counter
	derived      metric.Int64Counter
	inferenceDur metric.Float64Histogram
	plans        metric.Int64Counter
	planNodes    metric.Int64Histogram
	planDur      metric.Float64Histogram
	memoryOps    metric.Int64Counter
	recallHits   metric.Int64Histogram
	actions      metric.Int64Counter
	actionDur    metric.Float64Histogram
	cycles       metric.Int64Counter
	cycleDur     metric.Float64Histogram
}

// NewKernelRecorder registers the kernel instruments on meter.
func NewKernelRecorder(meter metric.Meter) (*KernelRecorder, error) {
	var (
		r    KernelRecorder
		errs []error
	)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	seconds := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		errs = append(errs, err)
		return h
	}

	r.facts = counter("kernel.facts.added", "Facts added, by kind")
	r.inferences = counter("kernel.inference.runs", "Inference runs, by method")
	r.derived = counter("kernel.inference.derived", "Facts derived by inference")
	r.inferenceDur = seconds("kernel.inference.duration", "Inference run duration")
	r.plans = counter("kernel.plans", "Planning requests, by algorithm and outcome")
	r.planDur = seconds("kernel.plan.duration", "Planning duration")
	r.memoryOps = counter("kernel.memory.operations", "Memory store, recall and eviction operations")
	r.actions = counter("kernel.actions", "Executed actions, by status")
	r.actionDur = seconds("kernel.action.duration", "Action execution duration")
	r.cycles = counter("kernel.cycles", "Cognitive cycles, by outcome")
	r.cycleDur = seconds("kernel.cycle.duration", "Cognitive cycle duration")

	var err error
	r.planNodes, err = meter.Int64Histogram("kernel.plan.nodes_explored",
		metric.WithDescription("Search nodes expanded per plan"))
	errs = append(errs, err)
	r.recallHits, err = meter.Int64Histogram("kernel.memory.recall_hits",
		metric.WithDescription("Items returned per recall"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &r, nil
}

// KernelRecorder 返回挂在 SDK MeterProvider 上的记录器；遥测关闭时返回 nil。
func (p *Providers) KernelRecorder() (kernel.Recorder, error) {
	if !p.Enabled() {
		return nil, nil
	}
	r, err := NewKernelRecorder(p.mp.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// 内核接口不带 ctx，指标记录与请求上下文无关
var bg = context.Background()

func (r *KernelRecorder) RecordFactAdded(kind string) {
	r.facts.Add(bg, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *KernelRecorder) RecordInference(method string, derived int, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("method", method))
	r.inferences.Add(bg, 1, attrs)
	r.derived.Add(bg, int64(derived), attrs)
	r.inferenceDur.Record(bg, d.Seconds(), attrs)
}

func (r *KernelRecorder) RecordPlan(algorithm string, found bool, nodes int, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("algorithm", algorithm), attribute.Bool("found", found))
	r.plans.Add(bg, 1, attrs)
	r.planNodes.Record(bg, int64(nodes), attrs)
	r.planDur.Record(bg, d.Seconds(), attrs)
}

func (r *KernelRecorder) memoryOp(memoryType, op string) {
	r.memoryOps.Add(bg, 1, metric.WithAttributes(
		attribute.String("memory.type", memoryType), attribute.String("op", op)))
}

func (r *KernelRecorder) RecordMemoryStore(memoryType string)    { r.memoryOp(memoryType, "store") }
func (r *KernelRecorder) RecordMemoryEviction(memoryType string) { r.memoryOp(memoryType, "evict") }

func (r *KernelRecorder) RecordMemoryRecall(memoryType string, hits int) {
	r.memoryOp(memoryType, "recall")
	r.recallHits.Record(bg, int64(hits), metric.WithAttributes(attribute.String("memory.type", memoryType)))
}

func (r *KernelRecorder) RecordAction(status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	r.actions.Add(bg, 1, attrs)
	r.actionDur.Record(bg, d.Seconds(), attrs)
}

func (r *KernelRecorder) RecordCycle(success, replanned bool, d time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success), attribute.Bool("replanned", replanned))
	r.cycles.Add(bg, 1, attrs)
	r.cycleDur.Record(bg, d.Seconds(), attrs)
}
