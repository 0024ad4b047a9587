// Package events 将内核事件广播给订阅者（WebSocket 事件流）。
//
// Hub 实现内核的 Recorder 接口，与 Prometheus 采集器并列挂在内核上。
// 发布永不阻塞内核：订阅者缓冲区满时丢弃该事件并计数。
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Type 事件类型
type Type string

const (
	TypeFactAdded      Type = "fact_added"
	TypeInference      Type = "inference"
	TypePlan           Type = "plan"
	TypeMemoryStore    Type = "memory_store"
	TypeMemoryRecall   Type = "memory_recall"
	TypeMemoryEviction Type = "memory_eviction"
	TypeAction         Type = "action"
	TypeCycle          Type = "cycle"
)

// AllTypes lists every event type.
var AllTypes = []Type{
	TypeFactAdded, TypeInference, TypePlan, TypeMemoryStore,
	TypeMemoryRecall, TypeMemoryEviction, TypeAction, TypeCycle,
}

// Event 一条内核事件
type Event struct {
	Seq        uint64         `json:"seq"`
	Type       Type           `json:"type"`
	KernelID   string         `json:"kernel_id,omitempty"`
	Time       time.Time      `json:"time"`
	DurationMS float64        `json:"duration_ms,omitempty"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

// DefaultBufferSize 订阅者缓冲区默认大小
const DefaultBufferSize = 64

// Subscription 一个订阅者
type Subscription struct {
	ch      chan Event
	filter  map[Type]bool
	dropped atomic.Int64
	hub     *Hub
	once    sync.Once
}

// Events 返回事件通道，Close 或 Hub 关闭后通道关闭
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped 返回因缓冲区满而丢弃的事件数
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close 取消订阅，可重复调用
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (s *Subscription) wants(t Type) bool {
	return len(s.filter) == 0 || s.filter[t]
}

// Stats Hub 统计
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     int64  `json:"dropped"`
}

// Hub 事件广播中心，并发安全
type Hub struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	closed   bool
	kernelID string

	seq     atomic.Uint64
	dropped atomic.Int64

	now    func() time.Time
	logger *zap.Logger
}

// NewHub 创建事件中心，kernelID 写入每条事件
func NewHub(kernelID string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:     make(map[*Subscription]struct{}),
		kernelID: kernelID,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "event_hub")),
	}
}

// Subscribe 注册订阅者。types 为空表示订阅全部事件。
// Hub 已关闭时返回的订阅通道立即关闭。
func (h *Hub) Subscribe(buffer int, types ...Type) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	s := &Subscription{ch: make(chan Event, buffer), hub: h}
	if len(types) > 0 {
		s.filter = make(map[Type]bool, len(types))
		for _, t := range types {
			s.filter[t] = true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	h.logger.Debug("subscriber added", zap.Int("subscribers", len(h.subs)))
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	s.once.Do(func() { close(s.ch) })
}

// Publish 广播事件，不阻塞
func (h *Hub) Publish(e Event) {
	e.Seq = h.seq.Add(1)
	if e.Time.IsZero() {
		e.Time = h.now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if e.KernelID == "" {
		e.KernelID = h.kernelID
	}
	for s := range h.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
}

// SetKernelID 设置写入事件的内核 ID（内核 ID 自动生成时在创建后补上）
func (h *Hub) SetKernelID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kernelID = id
}

// Close 关闭所有订阅
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.once.Do(func() { close(s.ch) })
		delete(h.subs, s)
	}
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	return Stats{Subscribers: n, Published: h.seq.Load(), Dropped: h.dropped.Load()}
}

// ParseType parses an event type name.
func ParseType(s string) (Type, bool) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// =============================================================================
// Recorder 实现
// =============================================================================

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func (h *Hub) RecordFactAdded(kind string) {
	h.Publish(Event{Type: TypeFactAdded, Attrs: map[string]any{"kind": kind}})
}

func (h *Hub) RecordInference(method string, derived int, d time.Duration) {
	h.Publish(Event{Type: TypeInference, DurationMS: ms(d), Attrs: map[string]any{"method": method, "derived": derived}})
}

func (h *Hub) RecordPlan(algorithm string, found bool, nodes int, d time.Duration) {
	h.Publish(Event{Type: TypePlan, DurationMS: ms(d), Attrs: map[string]any{
		"algorithm": algorithm, "found": found, "nodes_explored": nodes,
	}})
}

func (h *Hub) RecordMemoryStore(memoryType string) {
	h.Publish(Event{Type: TypeMemoryStore, Attrs: map[string]any{"memory_type": memoryType}})
}

func (h *Hub) RecordMemoryRecall(memoryType string, hits int) {
	h.Publish(Event{Type: TypeMemoryRecall, Attrs: map[string]any{"memory_type": memoryType, "hits": hits}})
}

func (h *Hub) RecordMemoryEviction(memoryType string) {
	h.Publish(Event{Type: TypeMemoryEviction, Attrs: map[string]any{"memory_type": memoryType}})
}

func (h *Hub) RecordAction(status string, d time.Duration) {
	h.Publish(Event{Type: TypeAction, DurationMS: ms(d), Attrs: map[string]any{"status": status}})
}

func (h *Hub) RecordCycle(success, replanned bool, d time.Duration) {
	h.Publish(Event{Type: TypeCycle, DurationMS: ms(d), Attrs: map[string]any{"success": success, "replanned": replanned}})
}
