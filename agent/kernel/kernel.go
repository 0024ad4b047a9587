package kernel

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/decision"
	"github.com/BaSui01/agentkernel/agent/execution"
	"github.com/BaSui01/agentkernel/agent/memory"
	"github.com/BaSui01/agentkernel/agent/planning"
	"github.com/BaSui01/agentkernel/agent/reasoning"
	"github.com/BaSui01/agentkernel/types"
)

const instrumentationName = "github.com/BaSui01/agentkernel/agent/kernel"

// Config 内核配置，聚合各组件配置
type Config struct {
	ID        string           `yaml:"id" json:"id"`
	Reasoning reasoning.Config `yaml:"reasoning" json:"reasoning"`
	Planning  planning.Config  `yaml:"planning" json:"planning"`
	Memory    memory.Config    `yaml:"memory" json:"memory"`
	Decision  decision.Config  `yaml:"decision" json:"decision"`
	Execution execution.Config `yaml:"execution" json:"execution"`
}

// DefaultConfig returns the default configuration of every component.
func DefaultConfig() Config {
	return Config{
		Reasoning: reasoning.DefaultConfig(),
		Planning:  planning.DefaultConfig(),
		Memory:    memory.DefaultConfig(),
		Decision:  decision.DefaultConfig(),
		Execution: execution.DefaultConfig(),
	}
}

// Tuning 可在运行时切换的参数，空值表示保持不变
type Tuning struct {
	Method    reasoning.Method   `json:"method,omitempty"`
	Algorithm planning.Algorithm `json:"algorithm,omitempty"`
	Strategy  decision.Strategy  `json:"strategy,omitempty"`
}

// Stats 内核统计
type Stats struct {
	ID        string          `json:"id"`
	Cycles    int             `json:"cycles"`
	Reasoning reasoning.Stats `json:"reasoning"`
	Planning  planning.Stats  `json:"planning"`
	Memory    memory.Stats    `json:"memory"`
	Decision  decision.Stats  `json:"decision"`
	Execution execution.Stats `json:"execution"`
}

// Kernel 认知内核 - 组合推理、规划、记忆、决策与执行
//
// 与各组件一样，Kernel 不做内部加锁。多个调用方共享一个 Kernel 时通过 Owner 串行访问。
type Kernel struct {
	id     string
	config Config

	engine   *reasoning.Engine
	planner  *planning.Planner
	memory   *memory.Memory
	decision *decision.Maker
	executor *execution.Executor

	cycles int

	memoryOpts   []memory.Option
	decisionOpts []decision.Option
	tracer       trace.Tracer
	recorder     Recorder
	logger       *zap.Logger
}

// Option customizes a Kernel.
type Option func(*Kernel)

// WithLogger sets the logger shared by all components.
func WithLogger(logger *zap.Logger) Option {
	return func(k *Kernel) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(k *Kernel) {
		if r != nil {
			k.recorder = r
		}
	}
}

// WithTracer sets the tracer. Defaults to the global OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(k *Kernel) {
		if t != nil {
			k.tracer = t
		}
	}
}

// WithMemoryOptions passes extra options to the memory system.
func WithMemoryOptions(opts ...memory.Option) Option {
	return func(k *Kernel) {
		k.memoryOpts = append(k.memoryOpts, opts...)
	}
}

// WithDecisionOptions passes extra options to the decision maker.
func WithDecisionOptions(opts ...decision.Option) Option {
	return func(k *Kernel) {
		k.decisionOpts = append(k.decisionOpts, opts...)
	}
}

// New 创建内核
func New(config Config, opts ...Option) *Kernel {
	k := &Kernel{
		id:       config.ID,
		config:   config,
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.id == "" {
		k.id = "kernel_" + uuid.NewString()
	}
	if k.tracer == nil {
		k.tracer = otel.Tracer(instrumentationName)
	}
	base := k.logger.With(zap.String("kernel_id", k.id))
	k.logger = base.With(zap.String("component", "kernel"))

	memOpts := append([]memory.Option{
		memory.WithLogger(base),
		memory.WithEvictionHook(func(memory.Item) {
			k.recorder.RecordMemoryEviction(string(memory.TypeEpisodic))
		}),
	}, k.memoryOpts...)

	k.engine = reasoning.NewEngine(config.Reasoning, reasoning.WithLogger(base))
	k.planner = planning.NewPlanner(config.Planning, base)
	k.memory = memory.New(config.Memory, memOpts...)
	k.decision = decision.NewMaker(config.Decision, append([]decision.Option{decision.WithLogger(base)}, k.decisionOpts...)...)
	k.executor = execution.NewExecutor(config.Execution, base)

	k.logger.Info("kernel initialized")
	return k
}

// ID returns the kernel identifier.
func (k *Kernel) ID() string { return k.id }

// Engine returns the inference engine.
func (k *Kernel) Engine() *reasoning.Engine { return k.engine }

// Planner returns the planner.
func (k *Kernel) Planner() *planning.Planner { return k.planner }

// Memory returns the memory system.
func (k *Kernel) Memory() *memory.Memory { return k.memory }

// Decision returns the decision maker.
func (k *Kernel) Decision() *decision.Maker { return k.decision }

// Executor returns the action executor.
func (k *Kernel) Executor() *execution.Executor { return k.executor }

func (k *Kernel) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("kernel.id", k.id))
	return k.tracer.Start(types.WithKernelID(ctx, k.id), "kernel."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// =============================================================================
// 推理
// =============================================================================

func validateConfidence(what string, c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return types.NewInvalidRequestError("%s confidence must be within [0, 1], got %v", what, c)
	}
	return nil
}

func validateFact(f reasoning.Fact) error {
	if f.Subject == "" || f.Predicate == "" {
		return types.NewInvalidRequestError("fact requires subject and predicate, got %q", f.String())
	}
	return nil
}

func validateRule(premises []reasoning.Fact, conclusion reasoning.Fact, confidence float64) error {
	if err := validateFact(conclusion); err != nil {
		return err
	}
	for _, p := range premises {
		if err := validateFact(p); err != nil {
			return err
		}
	}
	return validateConfidence("rule", confidence)
}

// 优先级为负会反转遗忘顺序，NaN 会让最小重要度比较失效
func validatePriority(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return types.NewInvalidRequestError("memory priority must be a finite non-negative number, got %v", p)
	}
	return nil
}

// AddFact 添加或覆盖事实
func (k *Kernel) AddFact(ctx context.Context, subject, predicate string, confidence float64) error {
	_, span := k.startSpan(ctx, "add_fact", attribute.String("fact", subject+"->"+predicate))
	err := validateFact(reasoning.F(subject, predicate))
	if err == nil {
		err = validateConfidence("fact", confidence)
	}
	if err == nil {
		k.engine.AddFact(subject, predicate, confidence)
		k.recorder.RecordFactAdded("fact")
	}
	endSpan(span, err)
	return err
}

// AddRule 追加规则
func (k *Kernel) AddRule(ctx context.Context, premises []reasoning.Fact, conclusion reasoning.Fact, confidence float64) error {
	_, span := k.startSpan(ctx, "add_rule", attribute.Int("premises", len(premises)))
	err := validateRule(premises, conclusion, confidence)
	if err == nil {
		k.engine.AddRule(premises, conclusion, confidence)
		k.recorder.RecordFactAdded("rule")
	}
	endSpan(span, err)
	return err
}

// Infer 运行推理并返回本次新推出的事实
func (k *Kernel) Infer(ctx context.Context) ([]reasoning.Fact, error) {
	ctx, span := k.startSpan(ctx, "infer", attribute.String("method", string(k.engine.Method())))
	start := time.Now()
	derived, err := k.engine.Infer(ctx)
	span.SetAttributes(attribute.Int("derived", len(derived)))
	k.recorder.RecordInference(string(k.engine.Method()), len(derived), time.Since(start))
	endSpan(span, err)
	return derived, err
}

// Query returns the predicates held by subject.
func (k *Kernel) Query(ctx context.Context, subject string) []reasoning.Assertion {
	_, span := k.startSpan(ctx, "query", attribute.String("subject", subject))
	defer span.End()
	return k.engine.Query(subject)
}

// Explain describes how f was derived by the last inference run.
func (k *Kernel) Explain(ctx context.Context, f reasoning.Fact) string {
	_, span := k.startSpan(ctx, "explain", attribute.String("fact", f.String()))
	defer span.End()
	return k.engine.Explain(f)
}

// Prove 反向证明目标事实，不修改知识库
func (k *Kernel) Prove(ctx context.Context, goal reasoning.Fact) (reasoning.Proof, error) {
	ctx, span := k.startSpan(ctx, "prove", attribute.String("goal", goal.String()))
	proof, err := k.engine.Prove(ctx, goal)
	span.SetAttributes(attribute.Bool("proved", proof.Proved))
	endSpan(span, err)
	return proof, err
}

// =============================================================================
// 规划与决策
// =============================================================================

// RegisterAction registers a planning action.
func (k *Kernel) RegisterAction(name string, pre planning.Condition, eff planning.Effect, cost float64) error {
	if err := k.planner.RegisterAction(name, pre, eff, cost); err != nil {
		return types.WrapError(err, types.ErrInvalidRequest, "invalid action")
	}
	return nil
}

// Plan 搜索从 initial 到 goal 的动作序列；actions 非 nil 时替换已注册动作集
func (k *Kernel) Plan(ctx context.Context, initial, goal planning.State, actions []planning.Action) ([]string, error) {
	ctx, span := k.startSpan(ctx, "plan", attribute.String("algorithm", string(k.planner.Algorithm())))
	start := time.Now()
	plan, err := k.planner.CreatePlan(ctx, initial, goal, actions)
	if err != nil && ctx.Err() == nil {
		err = types.WrapError(err, types.ErrInvalidRequest, "invalid action")
	}

	stats := k.planner.Stats()
	span.SetAttributes(
		attribute.Bool("found", stats.Found),
		attribute.Int("nodes_explored", stats.NodesExplored),
		attribute.Int("plan_length", len(plan)))
	k.recorder.RecordPlan(string(stats.Algorithm), stats.Found, stats.NodesExplored, time.Since(start))
	endSpan(span, err)
	return plan, err
}

// Decide 在可选动作中做出决策
func (k *Kernel) Decide(ctx context.Context, state decision.State, actions []string) (string, bool) {
	_, span := k.startSpan(ctx, "decide", attribute.Int("options", len(actions)))
	defer span.End()
	return k.decision.Decide(state, actions, nil)
}

// =============================================================================
// 记忆
// =============================================================================

// Remember 写入记忆，t 为空时写入默认分区
func (k *Kernel) Remember(ctx context.Context, t memory.Type, payload map[string]any, priority float64) (memory.Item, error) {
	if t == "" {
		t = k.memory.Type()
	}
	_, span := k.startSpan(ctx, "remember", attribute.String("memory.type", string(t)))
	if err := validatePriority(priority); err != nil {
		endSpan(span, err)
		return memory.Item{}, err
	}
	it, err := k.memory.StoreIn(t, payload, priority)
	if err != nil {
		err = types.WrapError(err, types.ErrInvalidRequest, "store memory")
	} else {
		k.recorder.RecordMemoryStore(string(t))
	}
	endSpan(span, err)
	return it, err
}

// Recall 检索记忆，t 为空时检索默认分区
func (k *Kernel) Recall(ctx context.Context, t memory.Type, query any, limit int, threshold float64) ([]memory.Item, error) {
	if t == "" {
		t = k.memory.Type()
	}
	_, span := k.startSpan(ctx, "recall", attribute.String("memory.type", string(t)))
	items, err := k.memory.RecallFrom(t, query, limit, threshold)
	if err != nil {
		err = types.WrapError(err, types.ErrInvalidRequest, "recall memory")
	} else {
		span.SetAttributes(attribute.Int("hits", len(items)))
		k.recorder.RecordMemoryRecall(string(t), len(items))
	}
	endSpan(span, err)
	return items, err
}

// ClearMemory drops the given memory types, or all of them.
func (k *Kernel) ClearMemory(ctx context.Context, kinds ...memory.Type) {
	_, span := k.startSpan(ctx, "clear_memory", attribute.Int("types", len(kinds)))
	defer span.End()
	k.memory.Clear(kinds...)
}

// =============================================================================
// 管理
// =============================================================================

// Tune 切换推理方法、规划算法或决策策略。未知名称在使用时按各组件规则处理。
func (k *Kernel) Tune(t Tuning) {
	if t.Method != "" {
		k.engine.SetMethod(t.Method)
		k.config.Reasoning.Method = t.Method
	}
	if t.Algorithm != "" {
		k.planner.SetAlgorithm(t.Algorithm)
		k.config.Planning.Algorithm = t.Algorithm
	}
	if t.Strategy != "" {
		k.decision.SetStrategy(t.Strategy)
		k.config.Decision.Strategy = t.Strategy
	}
	k.logger.Info("kernel tuned",
		zap.String("method", string(k.engine.Method())),
		zap.String("algorithm", string(k.planner.Algorithm())),
		zap.String("strategy", string(k.config.Decision.Strategy)))
}

// ValidateTuning 检查非空字段是否为已知名称，未知名称返回 UNKNOWN_STRATEGY
func (k *Kernel) ValidateTuning(t Tuning) error {
	if t.Method != "" {
		if _, ok := k.engine.Registry().Get(t.Method); !ok {
			return unknownStrategy("reasoning method", string(t.Method))
		}
	}
	if t.Algorithm != "" && !slices.Contains(planning.Algorithms(), t.Algorithm) {
		return unknownStrategy("planning algorithm", string(t.Algorithm))
	}
	if t.Strategy != "" && !slices.Contains(decision.Strategies(), t.Strategy) {
		return unknownStrategy("decision strategy", string(t.Strategy))
	}
	return nil
}

func unknownStrategy(kind, name string) error {
	return types.NewError(types.ErrUnknownStrategy, fmt.Sprintf("unknown %s %q", kind, name)).
		WithHTTPStatus(400)
}

// Stats 返回各组件统计
func (k *Kernel) Stats() Stats {
	return Stats{
		ID:        k.id,
		Cycles:    k.cycles,
		Reasoning: k.engine.Stats(),
		Planning:  k.planner.Stats(),
		Memory:    k.memory.Stats(),
		Decision:  k.decision.Stats(),
		Execution: k.executor.Stats(),
	}
}

func (k *Kernel) String() string {
	return fmt.Sprintf("Kernel(id=%s, facts=%d, actions=%d, memories=%d)",
		k.id, k.engine.Stats().Facts, len(k.planner.Actions()), k.memory.Len())
}
