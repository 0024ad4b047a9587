package reasoning

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// backwardChaining needs a goal; as a whole-knowledge-base pass it derives nothing.
// Goal-driven proofs go through Engine.Prove.
type backwardChaining struct{}

func (backwardChaining) Method() Method { return MethodBackwardChaining }

func (backwardChaining) Infer(_ context.Context, e *Engine) ([]Fact, error) {
	e.logger.Info("backward chaining requires a goal, use Prove; returning empty result")
	return nil, nil
}

// Proof is the result of a goal-driven proof attempt.
type Proof struct {
	Goal       Fact    `json:"goal"`
	Proved     bool    `json:"proved"`
	Confidence float64 `json:"confidence"`
	// Support lists the held facts the best proof rests on.
	Support []Fact `json:"support,omitempty"`
}

// Prove 反向链证明 - 从目标出发寻找支撑规则，不修改知识库
//
// 目标已是事实时直接成立；否则在结论等于目标的规则中，取全部前提可证的规则，
// 置信度按前向链同样的公式计算并取最大值。递归深度以 MaxDepth 为界，环路视为不可证。
func (e *Engine) Prove(ctx context.Context, goal Fact) (Proof, error) {
	visiting := make(map[Fact]bool)
	ok, conf, support, err := e.prove(ctx, goal, 0, visiting)
	if err != nil {
		return Proof{Goal: goal}, err
	}
	sort.Slice(support, func(i, j int) bool { return support[i].String() < support[j].String() })

	e.logger.Debug("prove",
		zap.Stringer("goal", goal),
		zap.Bool("proved", ok),
		zap.Float64("confidence", conf))
	return Proof{Goal: goal, Proved: ok, Confidence: conf, Support: support}, nil
}

func (e *Engine) prove(ctx context.Context, goal Fact, depth int, visiting map[Fact]bool) (bool, float64, []Fact, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, nil, err
	}
	if conf, ok := e.kb.Confidence(goal); ok {
		return true, conf, []Fact{goal}, nil
	}
	if depth >= e.config.MaxDepth || visiting[goal] {
		return false, 0, nil, nil
	}

	visiting[goal] = true
	defer delete(visiting, goal)

	proved := false
	best := 0.0
	var bestSupport []Fact

	for _, entry := range e.rules {
		r := entry.rule
		if r == nil || r.Conclusion != goal {
			continue
		}

		minConf := 1.0
		var support []Fact
		all := true
		for _, p := range r.Premises {
			ok, conf, sub, err := e.prove(ctx, p, depth+1, visiting)
			if err != nil {
				return false, 0, nil, err
			}
			if !ok {
				all = false
				break
			}
			if conf < minConf {
				minConf = conf
			}
			support = append(support, sub...)
		}
		if !all {
			continue
		}

		conf := r.Confidence * minConf
		if !proved || conf > best {
			proved = true
			best = conf
			bestSupport = support
		}
	}
	return proved, best, dedupFacts(bestSupport), nil
}

func dedupFacts(facts []Fact) []Fact {
	if len(facts) == 0 {
		return facts
	}
	seen := make(map[Fact]bool, len(facts))
	out := facts[:0]
	for _, f := range facts {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
