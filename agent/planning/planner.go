package planning

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Algorithm 搜索算法标识
type Algorithm string

const (
	AlgorithmAStar  Algorithm = "a_star"
	AlgorithmBFS    Algorithm = "bfs"
	AlgorithmDFS    Algorithm = "dfs"
	AlgorithmSTRIPS Algorithm = "strips"
)

// Heuristic estimates the remaining cost from state to goal.
type Heuristic func(state, goal State) float64

// searchMode describes one algorithm: its frontier discipline and whether it
// orders by f = g + h.
type searchMode struct {
	newFrontier func() frontier
	informed    bool
}

var algorithms = map[Algorithm]searchMode{
	AlgorithmAStar:  {newFrontier: func() frontier { return &priority{} }, informed: true},
	AlgorithmBFS:    {newFrontier: func() frontier { return &fifo{} }},
	AlgorithmDFS:    {newFrontier: func() frontier { return &lifo{} }},
	AlgorithmSTRIPS: {newFrontier: func() frontier { return &priority{} }, informed: true},
}

// Algorithms lists the supported algorithm names.
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmAStar, AlgorithmBFS, AlgorithmDFS, AlgorithmSTRIPS}
}

// Config configures a Planner.
type Config struct {
	Algorithm Algorithm `yaml:"algorithm" json:"algorithm"`
	// MaxNodes 单次规划最多弹出的节点数，耗尽即返回空计划
	MaxNodes int `yaml:"max_nodes" json:"max_nodes"`
	// MaxPlanDepth 计划长度上界，0 表示不限
	MaxPlanDepth int `yaml:"max_plan_depth" json:"max_plan_depth"`
}

// DefaultConfig returns A* with a budget of 100 explored nodes.
func DefaultConfig() Config {
	return Config{
		Algorithm: AlgorithmAStar,
		MaxNodes:  100,
	}
}

// Stats 规划统计，每次 CreatePlan 重置
type Stats struct {
	Algorithm     Algorithm `json:"algorithm"`
	MaxNodes      int       `json:"max_nodes"`
	NodesExplored int       `json:"nodes_explored"`
	PlanLength    int       `json:"plan_length"`
	PlanCost      float64   `json:"plan_cost"`
	Found         bool      `json:"found"`
	Actions       int       `json:"actions"`
}

// Planner 状态空间规划器
//
// Planner 不做内部加锁，由单一所有者使用。调用方提供的前置条件、效果与启发函数
// 不做隔离，panic 会直接向上传播。
type Planner struct {
	config    Config
	actions   []Action
	heuristic Heuristic
	stats     Stats
	logger    *zap.Logger
}

// NewPlanner 创建规划器
func NewPlanner(config Config, logger *zap.Logger) *Planner {
	if config.MaxNodes <= 0 {
		config.MaxNodes = DefaultConfig().MaxNodes
	}
	if config.Algorithm == "" {
		config.Algorithm = AlgorithmAStar
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Planner{
		config: config,
		logger: logger.With(zap.String("component", "planner")),
	}
	p.logger.Info("planner initialized",
		zap.String("algorithm", string(config.Algorithm)),
		zap.Int("max_nodes", config.MaxNodes))
	return p
}

// Algorithm returns the configured algorithm.
func (p *Planner) Algorithm() Algorithm {
	return p.config.Algorithm
}

// SetAlgorithm switches the search algorithm. Unknown names are reported at plan time.
func (p *Planner) SetAlgorithm(a Algorithm) {
	p.config.Algorithm = a
}

// RegisterAction 注册动作
func (p *Planner) RegisterAction(name string, pre Condition, eff Effect, cost float64) error {
	a := Action{Name: name, Precondition: pre, Effect: eff, Cost: cost}
	if err := a.Validate(); err != nil {
		return err
	}
	p.actions = append(p.actions, a)
	p.logger.Debug("action registered", zap.String("action", name), zap.Float64("cost", cost))
	return nil
}

// Actions returns the registered actions.
func (p *Planner) Actions() []Action {
	return append([]Action(nil), p.actions...)
}

// SetHeuristic 设置启发函数，仅 A* / STRIPS 使用
func (p *Planner) SetHeuristic(h Heuristic) {
	p.heuristic = h
	p.logger.Debug("heuristic set", zap.Bool("enabled", h != nil))
}

// CreatePlan searches for an action sequence leading from initial to a state
// satisfying goal. A non-nil actions slice replaces the registered action set.
//
// No plan within the node budget yields an empty, non-nil slice and a nil error.
// The only error is the caller's context being done.
func (p *Planner) CreatePlan(ctx context.Context, initial, goal State, actions []Action) ([]string, error) {
	p.stats = Stats{Algorithm: p.config.Algorithm, MaxNodes: p.config.MaxNodes}

	if actions != nil {
		for _, a := range actions {
			if err := a.Validate(); err != nil {
				return []string{}, err
			}
		}
		p.actions = append([]Action(nil), actions...)
	}
	p.stats.Actions = len(p.actions)

	mode, ok := algorithms[p.config.Algorithm]
	if !ok {
		p.logger.Error("unknown planning algorithm", zap.String("algorithm", string(p.config.Algorithm)))
		return []string{}, nil
	}
	if p.config.Algorithm == AlgorithmSTRIPS {
		p.logger.Debug("strips has no goal-stack planner, using a_star")
	}

	p.logger.Info("creating plan", zap.String("algorithm", string(p.config.Algorithm)))

	plan, cost, found, err := p.search(ctx, initial, goal, mode)
	if err != nil {
		return []string{}, err
	}
	if !found {
		p.logger.Warn("no plan found", zap.Int("nodes_explored", p.stats.NodesExplored))
		return []string{}, nil
	}

	p.stats.Found = true
	p.stats.PlanLength = len(plan)
	p.stats.PlanCost = cost
	p.logger.Info("plan created",
		zap.Int("length", len(plan)),
		zap.Float64("cost", cost),
		zap.Int("nodes_explored", p.stats.NodesExplored))
	return plan, nil
}

// Replan 从当前状态重新规划。failedAction 仅用于日志。
func (p *Planner) Replan(ctx context.Context, current, goal State, failedAction string) ([]string, error) {
	p.logger.Info("replanning from current state")
	if failedAction != "" {
		p.logger.Debug("replanning due to failed action", zap.String("action", failedAction))
	}
	return p.CreatePlan(ctx, current, goal, nil)
}

// Simulate 在 initial 上依次应用计划中的已注册动作，返回最终状态与累计代价。
// 动作未注册或前置条件不成立时返回错误，此时状态为出错前的最后一个状态。
func (p *Planner) Simulate(initial State, plan []string) (State, float64, error) {
	byName := make(map[string]Action, len(p.actions))
	for _, a := range p.actions {
		if _, dup := byName[a.Name]; !dup {
			byName[a.Name] = a
		}
	}

	state, cost := initial.Clone(), 0.0
	for i, name := range plan {
		a, ok := byName[name]
		if !ok {
			return state, cost, fmt.Errorf("step %d: unknown action %q", i, name)
		}
		if !a.Precondition.Holds(state) {
			return state, cost, fmt.Errorf("step %d: precondition of %q does not hold", i, name)
		}
		state = a.apply(state)
		cost += a.Cost
	}
	return state, cost, nil
}

// EstimatePlanCost returns the heuristic value if set, otherwise the number of
// goal keys not yet satisfied.
func (p *Planner) EstimatePlanCost(state, goal State) float64 {
	if p.heuristic != nil {
		return p.heuristic(state, goal)
	}
	return float64(state.Mismatches(goal))
}

// DecomposeGoal splits a goal into sub-goals. Without hierarchical methods every
// goal is its own single sub-goal.
func (p *Planner) DecomposeGoal(goal State) []State {
	subgoals := []State{goal.Clone()}
	p.logger.Debug("goal decomposed", zap.Int("subgoals", len(subgoals)))
	return subgoals
}

// Stats 返回最近一次规划的统计
func (p *Planner) Stats() Stats {
	s := p.stats
	s.Actions = len(p.actions)
	if s.Algorithm == "" {
		s.Algorithm = p.config.Algorithm
		s.MaxNodes = p.config.MaxNodes
	}
	return s
}

func (p *Planner) String() string {
	return fmt.Sprintf("Planner(algorithm=%s, actions=%d)", p.config.Algorithm, len(p.actions))
}
