// Package mocks 提供测试替身
package mocks

import (
	"strings"
	"sync"
	"time"
)

// Event 一次被记录的指标事件
type Event struct {
	Name   string
	Labels []string
}

// Key 返回 "name:label1:label2" 形式的键
func (e Event) Key() string {
	return strings.Join(append([]string{e.Name}, e.Labels...), ":")
}

// Recorder 记录内核、快照存储与数据库查询的指标事件，并发安全。
// 同时满足 kernel.Recorder、persistence.OpRecorder 与 database.QueryObserver。
type Recorder struct {
	mu     sync.Mutex
	events []Event
	counts map[string]int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{counts: make(map[string]int)}
}

func (r *Recorder) add(name string, labels ...string) {
	e := Event{Name: name, Labels: labels}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	r.counts[name]++
	if len(labels) > 0 {
		r.counts[e.Key()]++
	}
}

// Count 返回事件次数。key 可以是事件名（"plan"），也可以带完整标签（"action:success"）。
func (r *Recorder) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

// Events returns a copy of the events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset 清空记录
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.counts = make(map[string]int)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// --- 内核事件 ---

func (r *Recorder) RecordFactAdded(kind string) { r.add("fact_added", kind) }

func (r *Recorder) RecordInference(method string, _ int, _ time.Duration) {
	r.add("inference", method)
}

func (r *Recorder) RecordPlan(algorithm string, found bool, _ int, _ time.Duration) {
	r.add("plan", algorithm, boolLabel(found))
}

func (r *Recorder) RecordMemoryStore(memoryType string) { r.add("memory_store", memoryType) }

func (r *Recorder) RecordMemoryRecall(memoryType string, _ int) { r.add("memory_recall", memoryType) }

func (r *Recorder) RecordMemoryEviction(memoryType string) { r.add("memory_eviction", memoryType) }

func (r *Recorder) RecordAction(status string, _ time.Duration) { r.add("action", status) }

func (r *Recorder) RecordCycle(success, replanned bool, _ time.Duration) {
	r.add("cycle", boolLabel(success), boolLabel(replanned))
}

// --- 存储与数据库 ---

func (r *Recorder) RecordSnapshotOp(backend, operation string, err error, _ time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.add("snapshot_op", backend, operation, status)
}

func (r *Recorder) RecordDBQuery(database, operation string, _ time.Duration) {
	r.add("db_query", database, operation)
}
