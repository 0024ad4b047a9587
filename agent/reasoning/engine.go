package reasoning

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Rule 推理规则 - 全部前提成立时得出结论
type Rule struct {
	Premises   []Fact  `json:"premises"`
	Conclusion Fact    `json:"conclusion"`
	Confidence float64 `json:"confidence"`
}

// CustomRule is a caller-defined rule evaluated during forward passes.
// Action may assert facts through the store it receives.
type CustomRule struct {
	Name      string
	Condition func(kb *KnowledgeStore) bool
	Action    func(kb *KnowledgeStore)
}

// InferenceStep 推理轨迹中的一步，仅用于解释
type InferenceStep struct {
	Depth      int     `json:"depth"`
	Rule       string  `json:"rule,omitempty"`
	Premises   []Fact  `json:"premises"`
	Conclusion Fact    `json:"conclusion"`
	Confidence float64 `json:"confidence"`
}

// Config configures an Engine.
type Config struct {
	Method   Method `yaml:"method" json:"method"`
	MaxDepth int    `yaml:"max_depth" json:"max_depth"`
}

// DefaultConfig returns forward chaining bounded at 10 passes.
func DefaultConfig() Config {
	return Config{
		Method:   MethodForwardChaining,
		MaxDepth: 10,
	}
}

// Stats 推理引擎统计
type Stats struct {
	Method         Method `json:"method"`
	MaxDepth       int    `json:"max_depth"`
	Facts          int    `json:"facts"`
	Rules          int    `json:"rules"`
	DerivedFacts   int    `json:"derived_facts"`
	InferenceSteps int    `json:"inference_steps"`
}

// ruleEntry keeps plain and custom rules in one insertion-ordered list.
type ruleEntry struct {
	rule   *Rule
	custom *CustomRule
}

// Engine 推理引擎 - 事实/规则知识库与可切换的推理策略
//
// Engine 不做内部加锁，由单一所有者使用；多调用方场景通过 kernel.Owner 串行化。
type Engine struct {
	config     Config
	kb         *KnowledgeStore
	rules      []ruleEntry
	registry   *StrategyRegistry
	exclusive  map[string]map[string]bool
	trace      []InferenceStep
	derived    []Fact
	derivedSet map[Fact]bool
	logger     *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRegistry replaces the built-in strategy registry.
func WithRegistry(r *StrategyRegistry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// NewEngine 创建推理引擎
func NewEngine(config Config, opts ...Option) *Engine {
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultConfig().MaxDepth
	}
	if config.Method == "" {
		config.Method = MethodForwardChaining
	}

	e := &Engine{
		config:     config,
		kb:         NewKnowledgeStore(),
		registry:   DefaultStrategyRegistry(),
		exclusive:  make(map[string]map[string]bool),
		derivedSet: make(map[Fact]bool),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "inference_engine"))

	e.logger.Info("inference engine initialized",
		zap.String("method", string(config.Method)),
		zap.Int("max_depth", config.MaxDepth))
	return e
}

// Knowledge exposes the underlying store for strategies and custom rules.
func (e *Engine) Knowledge() *KnowledgeStore {
	return e.kb
}

// Registry returns the strategy registry used to resolve methods.
func (e *Engine) Registry() *StrategyRegistry {
	return e.registry
}

// Method returns the configured inference method.
func (e *Engine) Method() Method {
	return e.config.Method
}

// SetMethod switches the inference method. Unknown methods are accepted and
// reported at Infer time.
func (e *Engine) SetMethod(m Method) {
	e.config.Method = m
}

// AddFact 添加或覆盖事实
func (e *Engine) AddFact(subject, predicate string, confidence float64) {
	f := F(subject, predicate)
	e.kb.Assert(f, confidence)
	e.logger.Debug("fact added",
		zap.Stringer("fact", f),
		zap.Float64("confidence", confidence))
}

// AddRule 追加规则。结论与前提重合的规则是合法的。
func (e *Engine) AddRule(premises []Fact, conclusion Fact, confidence float64) {
	r := &Rule{
		Premises:   append([]Fact(nil), premises...),
		Conclusion: conclusion,
		Confidence: confidence,
	}
	e.rules = append(e.rules, ruleEntry{rule: r})
	e.logger.Debug("rule added",
		zap.Int("premises", len(premises)),
		zap.Stringer("conclusion", conclusion),
		zap.Float64("confidence", confidence))
}

// AddCustomRule 追加自定义规则
func (e *Engine) AddCustomRule(name string, condition func(*KnowledgeStore) bool, action func(*KnowledgeStore)) error {
	if condition == nil || action == nil {
		return fmt.Errorf("custom rule %q: condition and action are required", name)
	}
	e.rules = append(e.rules, ruleEntry{custom: &CustomRule{Name: name, Condition: condition, Action: action}})
	e.logger.Debug("custom rule added", zap.String("rule", name))
	return nil
}

// Infer runs the configured strategy and merges derived facts into the store.
// An unknown method logs a warning and yields an empty result.
func (e *Engine) Infer(ctx context.Context) ([]Fact, error) {
	e.resetDerivation()

	strategy, ok := e.registry.Get(e.config.Method)
	if !ok {
		e.logger.Warn("unknown inference method, skipping inference",
			zap.String("method", string(e.config.Method)))
		return []Fact{}, nil
	}

	derived, err := strategy.Infer(ctx, e)
	if derived == nil {
		derived = []Fact{}
	}
	return derived, err
}

// Query 按主语精确查询
func (e *Engine) Query(subject string) []Assertion {
	results := e.kb.Query(subject)
	e.logger.Debug("query", zap.String("subject", subject), zap.Int("results", len(results)))
	return results
}

// Explain 解释事实的推导链
func (e *Engine) Explain(f Fact) string {
	if !e.derivedSet[f] {
		return fmt.Sprintf("Fact %s is not a derived fact (may be asserted or not known)", f)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Explanation for %s:", f)
	for _, step := range e.trace {
		if step.Conclusion != f {
			continue
		}
		b.WriteString("\n")
		if step.Rule != "" {
			fmt.Fprintf(&b, "  Depth %d: custom rule %q asserted %s (confidence: %.3f)",
				step.Depth, step.Rule, f, step.Confidence)
			continue
		}
		premises := make([]string, len(step.Premises))
		for i, p := range step.Premises {
			premises[i] = p.String()
		}
		fmt.Fprintf(&b, "  Depth %d: From %s inferred %s (confidence: %.3f)",
			step.Depth, strings.Join(premises, ", "), f, step.Confidence)
	}
	return b.String()
}

// Clear 清空事实、规则、置信度与推理轨迹
func (e *Engine) Clear() {
	e.kb.Reset()
	e.rules = nil
	e.resetDerivation()
	e.logger.Info("knowledge base cleared")
}

// Facts returns every held fact with its confidence.
func (e *Engine) Facts() []WeightedFact {
	return e.kb.Facts()
}

// Rules returns copies of the plain rules. Custom rules are closures and are not exported.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.rules))
	for _, entry := range e.rules {
		if entry.rule == nil {
			continue
		}
		r := *entry.rule
		r.Premises = append([]Fact(nil), r.Premises...)
		out = append(out, r)
	}
	return out
}

// Trace returns a copy of the last inference trace.
func (e *Engine) Trace() []InferenceStep {
	return append([]InferenceStep(nil), e.trace...)
}

// Derived returns the facts derived by the last Infer call.
func (e *Engine) Derived() []Fact {
	return append([]Fact(nil), e.derived...)
}

// Stats 返回统计信息
func (e *Engine) Stats() Stats {
	return Stats{
		Method:         e.config.Method,
		MaxDepth:       e.config.MaxDepth,
		Facts:          e.kb.Len(),
		Rules:          len(e.rules),
		DerivedFacts:   len(e.derived),
		InferenceSteps: len(e.trace),
	}
}

func (e *Engine) resetDerivation() {
	e.trace = nil
	e.derived = nil
	e.derivedSet = make(map[Fact]bool)
}

// recordDerivation marks f as derived in this run and appends a trace step.
func (e *Engine) recordDerivation(step InferenceStep) {
	if !e.derivedSet[step.Conclusion] {
		e.derivedSet[step.Conclusion] = true
		e.derived = append(e.derived, step.Conclusion)
	}
	e.trace = append(e.trace, step)
}
