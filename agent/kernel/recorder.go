package kernel

import "time"

// Recorder 接收内核事件用于指标统计，internal/metrics.Collector 是其 Prometheus 实现
type Recorder interface {
	RecordFactAdded(kind string)
	RecordInference(method string, derived int, duration time.Duration)
	RecordPlan(algorithm string, found bool, nodesExplored int, duration time.Duration)
	RecordMemoryStore(memoryType string)
	RecordMemoryRecall(memoryType string, hits int)
	RecordMemoryEviction(memoryType string)
	RecordAction(status string, duration time.Duration)
	RecordCycle(success bool, replanned bool, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordFactAdded(string) {}
func (nopRecorder) RecordInference(string, int, time.Duration) {}
func (nopRecorder) RecordPlan(string, bool, int, time.Duration) {}
func (nopRecorder) RecordMemoryStore(string) {}
func (nopRecorder) RecordMemoryRecall(string, int) {}
func (nopRecorder) RecordMemoryEviction(string) {}
func (nopRecorder) RecordAction(string, time.Duration) {}
func (nopRecorder) RecordCycle(bool, bool, time.Duration) {}

// MultiRecorder fans every event out to recs in order. Nil entries are skipped.
func MultiRecorder(recs ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(recs))
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return nopRecorder{}
	case 1:
		return out[0]
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) RecordFactAdded(kind string) {
	for _, r := range m {
		r.RecordFactAdded(kind)
	}
}

func (m multiRecorder) RecordInference(method string, derived int, d time.Duration) {
	for _, r := range m {
		r.RecordInference(method, derived, d)
	}
}

func (m multiRecorder) RecordPlan(algorithm string, found bool, nodes int, d time.Duration) {
	for _, r := range m {
		r.RecordPlan(algorithm, found, nodes, d)
	}
}

func (m multiRecorder) RecordMemoryStore(t string) {
	for _, r := range m {
		r.RecordMemoryStore(t)
	}
}

func (m multiRecorder) RecordMemoryRecall(t string, hits int) {
	for _, r := range m {
		r.RecordMemoryRecall(t, hits)
	}
}

func (m multiRecorder) RecordMemoryEviction(t string) {
	for _, r := range m {
		r.RecordMemoryEviction(t)
	}
}

func (m multiRecorder) RecordAction(status string, d time.Duration) {
	for _, r := range m {
		r.RecordAction(status, d)
	}
}

func (m multiRecorder) RecordCycle(success, replanned bool, d time.Duration) {
	for _, r := range m {
		r.RecordCycle(success, replanned, d)
	}
}
