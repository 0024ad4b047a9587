package planning

import "fmt"

// Condition 前置条件
type Condition interface {
	Holds(s State) bool
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(s State) bool

func (f ConditionFunc) Holds(s State) bool { return f(s) }

// Effect 动作效果。Apply 收到的是状态的浅拷贝，可以原地修改后返回。
type Effect interface {
	Apply(s State) State
}

// EffectFunc adapts a function to Effect.
type EffectFunc func(s State) State

func (f EffectFunc) Apply(s State) State { return f(s) }

// Requires is a declarative precondition: s must satisfy the partial state.
func Requires(partial State) Condition {
	p := partial.Clone()
	return ConditionFunc(func(s State) bool { return s.Satisfies(p) })
}

// Always is a precondition that always holds.
var Always Condition = ConditionFunc(func(State) bool { return true })

// Assign is a declarative effect: it overwrites the keys of the partial state.
func Assign(partial State) Effect {
	p := partial.Clone()
	return EffectFunc(func(s State) State {
		for k, v := range p {
			s[k] = v
		}
		return s
	})
}

// Action 动作描述
type Action struct {
	Name         string
	Precondition Condition
	Effect       Effect
	Cost         float64
}

// Validate checks the descriptor is usable by the search.
func (a Action) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("action name is required")
	}
	if a.Precondition == nil || a.Effect == nil {
		return fmt.Errorf("action %q: precondition and effect are required", a.Name)
	}
	if a.Cost < 0 {
		return fmt.Errorf("action %q: cost must be non-negative, got %v", a.Name, a.Cost)
	}
	return nil
}

// apply runs the effect against a shallow copy of s. A nil result means the
// effect mutated the copy in place.
func (a Action) apply(s State) State {
	next := s.Clone()
	if out := a.Effect.Apply(next); out != nil {
		return out
	}
	return next
}
