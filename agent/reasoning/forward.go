package reasoning

import (
	"context"

	"go.uber.org/zap"
)

// forwardChaining 前向链推理 - 单调不动点计算
//
// 每一轮遍历全部规则：前提全部成立且结论尚不存在时加入结论，
// 置信度 = rule.Confidence × min(前提置信度)。无新事实或达到 MaxDepth 轮即停止。
type forwardChaining struct{}

func (forwardChaining) Method() Method { return MethodForwardChaining }

func (forwardChaining) Infer(ctx context.Context, e *Engine) ([]Fact, error) {
	e.logger.Info("performing forward chaining inference")

	changed := true
	depth := 0
	for changed && depth < e.config.MaxDepth {
		if err := ctx.Err(); err != nil {
			return e.Derived(), err
		}
		changed = false
		depth++

		for _, entry := range e.rules {
			if entry.custom != nil {
				if e.fireCustom(entry.custom, depth) {
					changed = true
				}
				continue
			}
			if e.fire(entry.rule, depth) {
				changed = true
			}
		}
	}

	e.logger.Info("forward chaining complete",
		zap.Int("derived", len(e.derived)),
		zap.Int("passes", depth))
	return e.Derived(), nil
}

// fire applies one plain rule. It reports whether a new fact was added.
func (e *Engine) fire(r *Rule, depth int) bool {
	if !e.kb.HasAll(r.Premises) || e.kb.Has(r.Conclusion) {
		return false
	}

	confidence := r.Confidence * e.kb.MinConfidence(r.Premises)
	e.kb.Assert(r.Conclusion, confidence)
	e.recordDerivation(InferenceStep{
		Depth:      depth,
		Premises:   append([]Fact(nil), r.Premises...),
		Conclusion: r.Conclusion,
		Confidence: confidence,
	})

	e.logger.Debug("rule fired",
		zap.Int("depth", depth),
		zap.Stringer("conclusion", r.Conclusion),
		zap.Float64("confidence", confidence))
	return true
}

// fireCustom evaluates a custom rule; only facts the action newly asserts count as change.
func (e *Engine) fireCustom(r *CustomRule, depth int) bool {
	if !r.Condition(e.kb) {
		return false
	}

	before := e.kb.Len()
	r.Action(e.kb)
	added := e.kb.order[before:]
	for _, f := range added {
		conf, _ := e.kb.Confidence(f)
		e.recordDerivation(InferenceStep{
			Depth:      depth,
			Rule:       r.Name,
			Conclusion: f,
			Confidence: conf,
		})
	}

	if len(added) > 0 {
		e.logger.Debug("custom rule fired",
			zap.String("rule", r.Name),
			zap.Int("depth", depth),
			zap.Int("asserted", len(added)))
	}
	return len(added) > 0
}
