package reasoning

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Method 推理方法标识
type Method string

const (
	MethodForwardChaining  Method = "forward_chaining"
	MethodBackwardChaining Method = "backward_chaining"
	MethodProbabilistic    Method = "probabilistic"
)

// Strategy defines one inference method. Implementations read and extend the
// engine's knowledge store and report the facts derived by this run.
type Strategy interface {
	Method() Method
	Infer(ctx context.Context, e *Engine) ([]Fact, error)
}

// ============================================================
// Strategy Registry
// ============================================================

// StrategyRegistry 推理策略注册表 - 方法名到实现的查找表
type StrategyRegistry struct {
	strategies map[Method]Strategy
	mu         sync.RWMutex
}

// NewStrategyRegistry 创建空的策略注册表
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		strategies: make(map[Method]Strategy),
	}
}

// DefaultStrategyRegistry returns a registry holding the built-in strategies.
func DefaultStrategyRegistry() *StrategyRegistry {
	r := NewStrategyRegistry()
	r.MustRegister(forwardChaining{})
	r.MustRegister(backwardChaining{})
	r.MustRegister(probabilistic{})
	return r
}

// Register 注册推理策略
func (r *StrategyRegistry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := s.Method()
	if _, exists := r.strategies[m]; exists {
		return fmt.Errorf("inference strategy %q already registered", m)
	}
	r.strategies[m] = s
	return nil
}

// MustRegister 注册推理策略，重复则 panic
func (r *StrategyRegistry) MustRegister(s Strategy) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get 获取推理策略
func (r *StrategyRegistry) Get(m Method) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[m]
	return s, ok
}

// List 列出所有已注册的方法名
func (r *StrategyRegistry) List() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]Method, 0, len(r.strategies))
	for m := range r.strategies {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

// Unregister 注销推理策略
func (r *StrategyRegistry) Unregister(m Method) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[m]; !exists {
		return false
	}
	delete(r.strategies, m)
	return true
}

// probabilistic is reserved for uncertainty propagation; it derives nothing yet.
type probabilistic struct{}

func (probabilistic) Method() Method { return MethodProbabilistic }

func (probabilistic) Infer(_ context.Context, e *Engine) ([]Fact, error) {
	e.logger.Info("probabilistic inference has no derivation rules, returning empty result")
	return nil, nil
}
