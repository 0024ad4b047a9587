package kernel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/execution"
	"github.com/BaSui01/agentkernel/agent/memory"
	"github.com/BaSui01/agentkernel/agent/planning"
	"github.com/BaSui01/agentkernel/agent/reasoning"
	"github.com/BaSui01/agentkernel/types"
)

// Perception 一次认知循环的输入
type Perception struct {
	// Facts 本轮感知到的事实，写入知识库
	Facts []reasoning.WeightedFact `json:"facts,omitempty"`
	// Observation 原始观察，写入工作记忆
	Observation map[string]any `json:"observation,omitempty"`
	State       planning.State `json:"state"`
	Goal        planning.State `json:"goal"`
	// Priority 本轮情节的记忆优先级，0 视为 1
	Priority float64 `json:"priority,omitempty"`
}

// CycleResult 认知循环结果
type CycleResult struct {
	Derived    []reasoning.Fact   `json:"derived"`
	Plan       []string           `json:"plan"`
	Replanned  bool               `json:"replanned"`
	Replan     []string           `json:"replan,omitempty"`
	Results    []execution.Result `json:"results"`
	FinalState planning.State     `json:"final_state"`
	Success    bool               `json:"success"`
	Episode    memory.Item        `json:"episode"`
	Duration   time.Duration      `json:"duration"`
}

// Cycle 运行一次 感知 → 推理 → 规划 → 执行 → 记忆
//
// 执行中某个动作失败时，从失败前的状态重新规划一次并执行新计划。环境实现
// execution.StateObserver 时以其报告的状态为准，否则按已成功动作的效果推算。
// 找不到计划或动作失败都不是错误，体现在 Success 中；只有非法输入与 ctx 结束返回错误。
func (k *Kernel) Cycle(ctx context.Context, p Perception, env execution.Environment) (*CycleResult, error) {
	ctx, span := k.startSpan(ctx, "cycle")
	start := time.Now()
	res, err := k.cycle(ctx, p, env)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	res.Duration = time.Since(start)
	k.cycles++

	span.SetAttributes(
		attribute.Bool("success", res.Success),
		attribute.Bool("replanned", res.Replanned),
		attribute.Int("plan_length", len(res.Plan)))
	endSpan(span, nil)
	k.recorder.RecordCycle(res.Success, res.Replanned, res.Duration)

	k.logger.Info("cycle complete",
		zap.Bool("success", res.Success),
		zap.Bool("replanned", res.Replanned),
		zap.Int("derived", len(res.Derived)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (k *Kernel) cycle(ctx context.Context, p Perception, env execution.Environment) (*CycleResult, error) {
	if env == nil {
		return nil, types.NewInvalidRequestError("cycle requires an environment")
	}
	if err := k.perceive(ctx, p); err != nil {
		return nil, err
	}

	derived, err := k.Infer(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := k.Plan(ctx, p.State, p.Goal, nil)
	if err != nil {
		return nil, err
	}

	res := &CycleResult{Derived: derived, Plan: plan, Results: []execution.Result{}}
	if len(plan) == 0 && !p.State.Satisfies(p.Goal) {
		k.logger.Warn("no plan for goal, skipping execution")
		res.FinalState = p.State.Clone()
	} else {
		if err := k.act(ctx, p, env, res); err != nil {
			return nil, err
		}
	}

	if res.Episode, err = k.remember(ctx, p, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (k *Kernel) perceive(ctx context.Context, p Perception) error {
	_, span := k.startSpan(ctx, "perceive", attribute.Int("facts", len(p.Facts)))
	for _, f := range p.Facts {
		if err := validateFact(f.Fact); err != nil {
			endSpan(span, err)
			return err
		}
		if err := validateConfidence("fact", f.Confidence); err != nil {
			endSpan(span, err)
			return err
		}
	}
	for _, f := range p.Facts {
		k.engine.AddFact(f.Subject, f.Predicate, f.Confidence)
		k.recorder.RecordFactAdded("perception")
	}
	if p.Observation != nil {
		if _, err := k.memory.StoreIn(memory.TypeWorking, p.Observation, priorityOf(p)); err != nil {
			endSpan(span, err)
			return err
		}
		k.recorder.RecordMemoryStore(string(memory.TypeWorking))
	}
	endSpan(span, nil)
	return nil
}

// act executes the plan, replanning once from the state reached before the first failure.
func (k *Kernel) act(ctx context.Context, p Perception, env execution.Environment, res *CycleResult) error {
	results := k.run(ctx, res.Plan, env)
	res.Results = append(res.Results, results...)
	if err := ctx.Err(); err != nil {
		return err
	}

	executed := succeeded(results)
	current := k.observe(env, p.State, res.Plan[:executed])
	if executed == len(res.Plan) {
		res.FinalState = current
		res.Success = current.Satisfies(p.Goal)
		return nil
	}

	failed := res.Plan[executed]
	k.logger.Info("action failed, replanning", zap.String("action", failed), zap.Int("step", executed))
	res.Replanned = true

	ctx, span := k.startSpan(ctx, "replan", attribute.String("failed_action", failed))
	start := time.Now()
	replan, err := k.planner.Replan(ctx, current, p.Goal, failed)
	stats := k.planner.Stats()
	k.recorder.RecordPlan(string(stats.Algorithm), stats.Found, stats.NodesExplored, time.Since(start))
	endSpan(span, err)
	if err != nil {
		return err
	}
	res.Replan = replan

	if len(replan) == 0 && !current.Satisfies(p.Goal) {
		res.FinalState = current
		return nil
	}

	results = k.run(ctx, replan, env)
	res.Results = append(res.Results, results...)
	if err := ctx.Err(); err != nil {
		return err
	}
	executed = succeeded(results)
	res.FinalState = k.observe(env, current, replan[:executed])
	res.Success = executed == len(replan) && res.FinalState.Satisfies(p.Goal)
	return nil
}

func (k *Kernel) run(ctx context.Context, plan []string, env execution.Environment) []execution.Result {
	ctx, span := k.startSpan(ctx, "execute", attribute.Int("actions", len(plan)))
	defer span.End()

	results := k.executor.ExecuteSequence(ctx, plan, env, true)
	for _, r := range results {
		k.recorder.RecordAction(string(r.Status), r.Duration)
	}
	return results
}

// observe returns the environment's own state when it reports one, otherwise
// the planner's prediction after applying done to from.
func (k *Kernel) observe(env execution.Environment, from planning.State, done []string) planning.State {
	if obs, ok := env.(execution.StateObserver); ok {
		return planning.State(obs.State()).Clone()
	}
	state, _, err := k.planner.Simulate(from, done)
	if err != nil {
		k.logger.Warn("cannot predict state from executed actions", zap.Error(err))
	}
	return state
}

func succeeded(results []execution.Result) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			break
		}
		n++
	}
	return n
}

func priorityOf(p Perception) float64 {
	if p.Priority == 0 {
		return 1
	}
	return p.Priority
}

func (k *Kernel) remember(ctx context.Context, p Perception, res *CycleResult) (memory.Item, error) {
	episode := map[string]any{
		"kind":      "cycle",
		"state":     map[string]any(p.State.Clone()),
		"goal":      map[string]any(p.Goal.Clone()),
		"plan":      append([]string(nil), res.Plan...),
		"replanned": res.Replanned,
		"success":   res.Success,
		"derived":   len(res.Derived),
	}
	if res.Replanned {
		episode["replan"] = append([]string(nil), res.Replan...)
	}
	return k.Remember(ctx, memory.TypeEpisodic, episode, priorityOf(p))
}
