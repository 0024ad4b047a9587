package memory

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config configures a Memory.
type Config struct {
	// Type 默认分区，Store / Recall 未指定分区时使用
	Type Type `yaml:"type" json:"type"`
	// Capacity 情节记忆容量上限
	Capacity int `yaml:"capacity" json:"capacity"`
	// WorkingSize 工作记忆环形缓冲大小
	WorkingSize int `yaml:"working_size" json:"working_size"`
}

// DefaultConfig returns episodic memory with capacity 10000 and a working ring of 100.
func DefaultConfig() Config {
	return Config{
		Type:        TypeEpisodic,
		Capacity:    10000,
		WorkingSize: 100,
	}
}

// Stats 记忆统计
type Stats struct {
	Type          Type `json:"type"`
	Capacity      int  `json:"capacity"`
	WorkingSize   int  `json:"working_size"`
	Working       int  `json:"working"`
	Episodic      int  `json:"episodic"`
	Semantic      int  `json:"semantic"`
	TotalAccesses int  `json:"total_accesses"`
	Evictions     int  `json:"evictions"`
}

// Memory 记忆系统 - 工作记忆、情节记忆与语义记忆
//
// 情节记忆满时先按重要性遗忘一条再写入；工作记忆是固定大小的环形缓冲，
// 语义记忆是无上限的 key -> item 表，二者都不走重要性遗忘。
// Memory 不做内部加锁，由单一所有者使用。
type Memory struct {
	config Config

	working  []*Item
	episodic []*Item
	semantic map[string]*Item
	semOrder []string

	accessCounts map[string]int
	lastAccess   map[string]time.Time
	evictions    int

	similarity SimilarityFunc
	onEvict    func(Item)
	now        func() time.Time
	logger     *zap.Logger
}

// Option customizes a Memory.
type Option func(*Memory)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSimilarity replaces the default FieldMatchSimilarity scorer.
func WithSimilarity(fn SimilarityFunc) Option {
	return func(m *Memory) {
		if fn != nil {
			m.similarity = fn
		}
	}
}

// WithClock injects the time source used for timestamps and recency.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithEvictionHook registers a callback invoked with each forgotten episodic item.
func WithEvictionHook(fn func(Item)) Option {
	return func(m *Memory) {
		m.onEvict = fn
	}
}

// New 创建记忆系统
func New(config Config, opts ...Option) *Memory {
	defaults := DefaultConfig()
	if config.Type == "" {
		config.Type = defaults.Type
	}
	if config.Capacity <= 0 {
		config.Capacity = defaults.Capacity
	}
	if config.WorkingSize <= 0 {
		config.WorkingSize = defaults.WorkingSize
	}

	m := &Memory{
		config:       config,
		semantic:     make(map[string]*Item),
		accessCounts: make(map[string]int),
		lastAccess:   make(map[string]time.Time),
		similarity:   FieldMatchSimilarity,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "memory"))

	m.logger.Info("memory initialized",
		zap.String("type", string(config.Type)),
		zap.Int("capacity", config.Capacity))
	return m
}

// Type returns the default memory type.
func (m *Memory) Type() Type {
	return m.config.Type
}

// Store 写入默认分区
func (m *Memory) Store(payload map[string]any, priority float64) (Item, error) {
	return m.StoreIn(m.config.Type, payload, priority)
}

// StoreIn 写入指定分区。情节记忆已满时先遗忘一条。
func (m *Memory) StoreIn(t Type, payload map[string]any, priority float64) (Item, error) {
	it := &Item{
		ID:        "mem_" + uuid.NewString(),
		Payload:   cloneMap(payload),
		Priority:  priority,
		CreatedAt: m.now(),
	}
	if it.Payload == nil {
		it.Payload = make(map[string]any)
	}
	if err := m.insert(t, it); err != nil {
		return Item{}, err
	}
	return it.clone(), nil
}

func (m *Memory) insert(t Type, it *Item) error {
	switch t {
	case TypeWorking:
		if len(m.working) >= m.config.WorkingSize {
			m.working = append(m.working[:0], m.working[1:]...)
		}
		m.working = append(m.working, it)
		m.logger.Debug("stored in working memory", zap.String("id", it.ID))

	case TypeEpisodic:
		if len(m.episodic) >= m.config.Capacity {
			m.forgetLeastImportant()
		}
		m.episodic = append(m.episodic, it)
		m.logger.Debug("stored in episodic memory", zap.String("id", it.ID))

	case TypeSemantic:
		key := it.Key
		if key == "" {
			if k, ok := it.Payload["key"].(string); ok && k != "" {
				key = k
			} else {
				key = it.ID
			}
		}
		it.Key = key
		if _, exists := m.semantic[key]; !exists {
			m.semOrder = append(m.semOrder, key)
		}
		m.semantic[key] = it
		m.logger.Debug("stored in semantic memory", zap.String("key", key))

	default:
		return fmt.Errorf("unknown memory type %q", t)
	}
	return nil
}

// Recall 检索默认分区
func (m *Memory) Recall(query any, k int, threshold float64) []Item {
	items, _ := m.RecallFrom(m.config.Type, query, k, threshold)
	return items
}

// RecallFrom scores every item of t against query, keeps those at or above
// threshold, and returns at most k of them by descending score. Every item that
// passed the threshold has its access count incremented, returned or not.
func (m *Memory) RecallFrom(t Type, query any, k int, threshold float64) ([]Item, error) {
	candidates, err := m.itemsOf(t)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Item{}, nil
	}

	type scored struct {
		score float64
		item  *Item
	}

	now := m.now()
	hits := make([]scored, 0, len(candidates))
	for _, it := range candidates {
		s := m.similarity(query, it)
		if s < threshold {
			continue
		}
		hits = append(hits, scored{score: s, item: it})
		m.accessCounts[it.ID]++
		m.lastAccess[it.ID] = now
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	if k < 0 {
		k = 0
	}
	if k > len(hits) {
		k = len(hits)
	}
	out := make([]Item, k)
	for i := 0; i < k; i++ {
		out[i] = m.export(hits[i].item)
	}

	m.logger.Debug("recalled memories",
		zap.String("type", string(t)),
		zap.Int("matched", len(hits)),
		zap.Int("returned", k))
	return out, nil
}

// Consolidate is reserved for memory compression. Stored items stay queryable.
func (m *Memory) Consolidate() {
	m.logger.Info("consolidating memories")
}

// Clear drops the given memory types, or all of them when none are given.
// Access and recency bookkeeping is always reset.
func (m *Memory) Clear(types ...Type) {
	all := len(types) == 0
	want := make(map[Type]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	if all || want[TypeWorking] {
		m.working = nil
	}
	if all || want[TypeEpisodic] {
		m.episodic = nil
	}
	if all || want[TypeSemantic] {
		m.semantic = make(map[string]*Item)
		m.semOrder = nil
	}
	m.accessCounts = make(map[string]int)
	m.lastAccess = make(map[string]time.Time)

	label := "all"
	if !all {
		label = fmt.Sprint(types)
	}
	m.logger.Info("memories cleared", zap.String("types", label))
}

// Len returns the number of items in the default memory type.
func (m *Memory) Len() int {
	return m.LenOf(m.config.Type)
}

// LenOf returns the number of items in memory type t.
func (m *Memory) LenOf(t Type) int {
	switch t {
	case TypeWorking:
		return len(m.working)
	case TypeEpisodic:
		return len(m.episodic)
	case TypeSemantic:
		return len(m.semantic)
	default:
		return 0
	}
}

// Items exports the items of t in storage order, with bookkeeping filled in.
func (m *Memory) Items(t Type) ([]Item, error) {
	src, err := m.itemsOf(t)
	if err != nil {
		return nil, err
	}
	out := make([]Item, len(src))
	for i, it := range src {
		out[i] = m.export(it)
	}
	return out, nil
}

// Restore appends previously exported items to t, keeping their IDs, timestamps
// and access counts. Episodic capacity is enforced the same way Store does.
func (m *Memory) Restore(t Type, items []Item) error {
	for i := range items {
		src := items[i]
		it := &Item{
			ID:        src.ID,
			Key:       src.Key,
			Payload:   cloneMap(src.Payload),
			Priority:  src.Priority,
			CreatedAt: src.CreatedAt,
		}
		if it.ID == "" {
			it.ID = "mem_" + uuid.NewString()
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = m.now()
		}
		if it.Payload == nil {
			it.Payload = make(map[string]any)
		}
		if err := m.insert(t, it); err != nil {
			return err
		}
		if src.AccessCount > 0 {
			m.accessCounts[it.ID] = src.AccessCount
		}
		if !src.LastAccess.IsZero() {
			m.lastAccess[it.ID] = src.LastAccess
		}
	}
	return nil
}

// Stats 返回统计信息
func (m *Memory) Stats() Stats {
	total := 0
	for _, n := range m.accessCounts {
		total += n
	}
	return Stats{
		Type:          m.config.Type,
		Capacity:      m.config.Capacity,
		WorkingSize:   m.config.WorkingSize,
		Working:       len(m.working),
		Episodic:      len(m.episodic),
		Semantic:      len(m.semantic),
		TotalAccesses: total,
		Evictions:     m.evictions,
	}
}

func (m *Memory) String() string {
	return fmt.Sprintf("Memory(type=%s, size=%d, capacity=%d)", m.config.Type, m.Len(), m.config.Capacity)
}

func (m *Memory) itemsOf(t Type) ([]*Item, error) {
	switch t {
	case TypeWorking:
		return m.working, nil
	case TypeEpisodic:
		return m.episodic, nil
	case TypeSemantic:
		out := make([]*Item, 0, len(m.semOrder))
		for _, key := range m.semOrder {
			out = append(out, m.semantic[key])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown memory type %q", t)
	}
}

func (m *Memory) export(it *Item) Item {
	out := it.clone()
	out.AccessCount = m.accessCounts[it.ID]
	out.LastAccess = m.lastAccess[it.ID]
	return out
}
