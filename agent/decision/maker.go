package decision

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Strategy 决策策略标识
type Strategy string

const (
	StrategyUtilityBased  Strategy = "utility_based"
	StrategyRuleBased     Strategy = "rule_based"
	StrategyMultiCriteria Strategy = "multi_criteria"
)

// Strategies lists the built-in strategies.
func Strategies() []Strategy {
	return []Strategy{StrategyUtilityBased, StrategyRuleBased, StrategyMultiCriteria}
}

// State is the world state a decision is made in.
type State = map[string]any

// UtilityFunc scores taking action in state.
type UtilityFunc func(state State, action string) float64

// CriterionFunc scores one criterion of an action, typically in [0, 1].
type CriterionFunc func(state State, action string) float64

// Rule 决策规则：条件成立且动作可选时选中该动作
type Rule struct {
	Condition func(state State) bool
	Action    string
	Priority  int
}

// Outcome is one possible result of an action with its probability.
type Outcome struct {
	State       State   `json:"state"`
	Probability float64 `json:"probability"`
}

// Record 决策历史记录
type Record struct {
	State    State          `json:"state"`
	Options  []string       `json:"options"`
	Chosen   string         `json:"chosen"`
	Strategy Strategy       `json:"strategy"`
	Fallback bool           `json:"fallback"`
	Context  map[string]any `json:"context,omitempty"`
	At       time.Time      `json:"at"`
}

// Config configures a Maker.
type Config struct {
	Strategy Strategy `yaml:"strategy" json:"strategy"`
	// RiskTolerance 风险偏好 [0,1]，0.5 为中性，越高越偏好方差
	RiskTolerance float64 `yaml:"risk_tolerance" json:"risk_tolerance"`
	// MaxHistory 历史记录上限，0 表示不限
	MaxHistory int `yaml:"max_history" json:"max_history"`
}

// DefaultConfig returns a neutral utility-based maker.
func DefaultConfig() Config {
	return Config{
		Strategy:      StrategyUtilityBased,
		RiskTolerance: 0.5,
		MaxHistory:    1000,
	}
}

// Stats 决策统计
type Stats struct {
	Strategy           Strategy `json:"strategy"`
	RiskTolerance      float64  `json:"risk_tolerance"`
	Rules              int      `json:"rules"`
	Criteria           int      `json:"criteria"`
	DecisionsMade      int      `json:"decisions_made"`
	Fallbacks          int      `json:"fallbacks"`
	HasUtilityFunction bool     `json:"has_utility_function"`
}

// chooser picks an action; ok=false asks for the random fallback.
type chooser func(m *Maker, state State, actions []string) (string, bool)

var strategies = map[Strategy]chooser{
	StrategyUtilityBased:  (*Maker).utilityBased,
	StrategyRuleBased:     (*Maker).ruleBased,
	StrategyMultiCriteria: (*Maker).multiCriteria,
}

// Maker 决策器
//
// 策略无法给出结果（未设置效用函数、无规则命中、未设置权重、未知策略）时
// 从可选动作中随机选择一个。
type Maker struct {
	config    Config
	utility   UtilityFunc
	rules     []Rule
	criteria  map[string]CriterionFunc
	weights   map[string]float64
	history   []Record
	fallbacks int
	rng       *rand.Rand
	logger    *zap.Logger
}

// Option customizes a Maker.
type Option func(*Maker)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Maker) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRand injects the random source used for fallback choices.
func WithRand(rng *rand.Rand) Option {
	return func(m *Maker) {
		if rng != nil {
			m.rng = rng
		}
	}
}

// NewMaker 创建决策器
func NewMaker(config Config, opts ...Option) *Maker {
	if config.Strategy == "" {
		config.Strategy = StrategyUtilityBased
	}
	m := &Maker{
		config:   config,
		criteria: make(map[string]CriterionFunc),
		weights:  make(map[string]float64),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "decision_maker"))
	return m
}

// SetStrategy switches the decision strategy. Unknown names fall back to random choice at decision time.
func (m *Maker) SetStrategy(s Strategy) {
	m.config.Strategy = s
}

// SetUtilityFunction sets the utility used by utility-based and uncertain decisions.
func (m *Maker) SetUtilityFunction(fn UtilityFunc) {
	m.utility = fn
}

// AddRule 添加规则，按优先级降序保存，同优先级保持添加顺序
func (m *Maker) AddRule(condition func(State) bool, action string, priority int) {
	m.rules = append(m.rules, Rule{Condition: condition, Action: action, Priority: priority})
	sort.SliceStable(m.rules, func(i, j int) bool {
		return m.rules[i].Priority > m.rules[j].Priority
	})
}

// RegisterCriterion adds a named evaluator for multi-criteria decisions.
func (m *Maker) RegisterCriterion(name string, fn CriterionFunc) {
	m.criteria[name] = fn
}

// SetCriteriaWeights stores weights normalized to sum to 1.
func (m *Maker) SetCriteriaWeights(weights map[string]float64) error {
	total := 0.0
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("criterion %q: negative weight %v", name, w)
		}
		total += w
	}
	if total == 0 {
		return fmt.Errorf("criteria weights must not sum to zero")
	}
	m.weights = make(map[string]float64, len(weights))
	for name, w := range weights {
		m.weights[name] = w / total
	}
	m.logger.Info("criteria weights set", zap.Any("weights", m.weights))
	return nil
}

// Decide 在给定状态下从可选动作中做出决策。无可选动作时返回 false。
func (m *Maker) Decide(state State, actions []string, context map[string]any) (string, bool) {
	if len(actions) == 0 {
		m.logger.Warn("no actions available for decision")
		return "", false
	}

	fallback := false
	choose, ok := strategies[m.config.Strategy]
	var action string
	if ok {
		action, ok = choose(m, state, actions)
	} else {
		m.logger.Warn("unknown decision strategy, using random choice",
			zap.String("strategy", string(m.config.Strategy)))
	}
	if !ok {
		action = m.randomChoice(actions)
		fallback = true
		m.fallbacks++
	}

	m.record(Record{
		State:    state,
		Options:  append([]string(nil), actions...),
		Chosen:   action,
		Strategy: m.config.Strategy,
		Fallback: fallback,
		Context:  context,
		At:       time.Now(),
	})
	return action, true
}

func (m *Maker) utilityBased(state State, actions []string) (string, bool) {
	if m.utility == nil {
		m.logger.Warn("no utility function set, using random choice")
		return "", false
	}
	best, bestUtility := actions[0], m.utility(state, actions[0])
	for _, a := range actions[1:] {
		if u := m.utility(state, a); u > bestUtility {
			best, bestUtility = a, u
		}
	}
	m.logger.Debug("utility decision", zap.String("action", best), zap.Float64("utility", bestUtility))
	return best, true
}

func (m *Maker) ruleBased(state State, actions []string) (string, bool) {
	available := make(map[string]bool, len(actions))
	for _, a := range actions {
		available[a] = true
	}
	for _, r := range m.rules {
		if available[r.Action] && r.Condition(state) {
			m.logger.Debug("rule matched", zap.String("action", r.Action), zap.Int("priority", r.Priority))
			return r.Action, true
		}
	}
	m.logger.Debug("no rule matched, using random action")
	return "", false
}

func (m *Maker) multiCriteria(state State, actions []string) (string, bool) {
	if len(m.weights) == 0 {
		m.logger.Warn("no criteria weights set")
		return "", false
	}

	names := make([]string, 0, len(m.weights))
	for name := range m.weights {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestScore := "", math.Inf(-1)
	for _, a := range actions {
		total := 0.0
		for _, name := range names {
			if eval, ok := m.criteria[name]; ok {
				total += m.weights[name] * eval(state, a)
			}
		}
		if total > bestScore {
			best, bestScore = a, total
		}
	}
	m.logger.Debug("multi-criteria decision", zap.String("action", best), zap.Float64("score", bestScore))
	return best, true
}

// DecideUnderUncertainty 期望效用决策
//
// 每个动作的期望效用 = Σ p·U(outcome)，再加上 (RiskTolerance − 0.5) × 效用方差。
// 未设置效用函数时随机选择。
func (m *Maker) DecideUnderUncertainty(state State, actions []string, outcomes map[string][]Outcome) (string, bool) {
	if len(actions) == 0 {
		return "", false
	}
	if m.utility == nil {
		m.logger.Warn("no utility function for uncertainty handling")
		m.fallbacks++
		return m.randomChoice(actions), true
	}

	best, bestValue := "", math.Inf(-1)
	for _, a := range actions {
		value := m.expectedUtility(a, outcomes[a])
		if value > bestValue {
			best, bestValue = a, value
		}
	}
	m.logger.Debug("decision under uncertainty", zap.String("action", best), zap.Float64("expected_utility", bestValue))
	return best, true
}

func (m *Maker) expectedUtility(action string, outcomes []Outcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	utilities := make([]float64, len(outcomes))
	expected, mean := 0.0, 0.0
	for i, o := range outcomes {
		utilities[i] = m.utility(o.State, action)
		expected += o.Probability * utilities[i]
		mean += utilities[i]
	}
	mean /= float64(len(utilities))

	variance := 0.0
	for _, u := range utilities {
		variance += (u - mean) * (u - mean)
	}
	variance /= float64(len(utilities))

	return expected + (m.config.RiskTolerance-0.5)*variance
}

// Explain 生成决策说明
func (m *Maker) Explain(state State, action string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Decision explanation for action: %s\n", action)
	fmt.Fprintf(&b, "Strategy used: %s\n", m.config.Strategy)

	switch m.config.Strategy {
	case StrategyUtilityBased:
		if m.utility != nil {
			fmt.Fprintf(&b, "Utility value: %.3f\n", m.utility(state, action))
		}
	case StrategyRuleBased:
		for _, r := range m.rules {
			if r.Action == action && r.Condition(state) {
				fmt.Fprintf(&b, "Matched rule with priority %d\n", r.Priority)
				break
			}
		}
	case StrategyMultiCriteria:
		names := make([]string, 0, len(m.weights))
		for name := range m.weights {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if eval, ok := m.criteria[name]; ok {
				fmt.Fprintf(&b, "Criterion %s: %.3f (weight %.3f)\n", name, eval(state, action), m.weights[name])
			}
		}
	}
	return b.String()
}

// Confidence 决策置信度 [0,1]
//
// 无选项为 0，单一选项为 1；有效用函数且最大效用为正时为 (max − mean) / max，
// 其余情况为 0.5。
func (m *Maker) Confidence(state State, actions []string) float64 {
	switch len(actions) {
	case 0:
		return 0
	case 1:
		return 1
	}
	if m.utility == nil {
		return 0.5
	}

	maxU, sum := math.Inf(-1), 0.0
	for _, a := range actions {
		u := m.utility(state, a)
		sum += u
		maxU = math.Max(maxU, u)
	}
	if maxU <= 0 {
		return 0.5
	}
	mean := sum / float64(len(actions))
	return math.Min(1, math.Max(0, (maxU-mean)/maxU))
}

// History returns a copy of the decision history.
func (m *Maker) History() []Record {
	return append([]Record(nil), m.history...)
}

// ClearHistory 清空决策历史
func (m *Maker) ClearHistory() {
	m.history = nil
	m.logger.Debug("decision history cleared")
}

// Stats 返回统计信息
func (m *Maker) Stats() Stats {
	return Stats{
		Strategy:           m.config.Strategy,
		RiskTolerance:      m.config.RiskTolerance,
		Rules:              len(m.rules),
		Criteria:           len(m.weights),
		DecisionsMade:      len(m.history),
		Fallbacks:          m.fallbacks,
		HasUtilityFunction: m.utility != nil,
	}
}

func (m *Maker) randomChoice(actions []string) string {
	return actions[m.rng.Intn(len(actions))]
}

func (m *Maker) record(r Record) {
	m.history = append(m.history, r)
	if m.config.MaxHistory > 0 && len(m.history) > m.config.MaxHistory {
		m.history = append([]Record(nil), m.history[len(m.history)-m.config.MaxHistory:]...)
	}
}
