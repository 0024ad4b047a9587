package reasoning

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// drawFact picks a fact from a small alphabet so rules actually chain.
func drawFact(rt *rapid.T, label string) Fact {
	s := rapid.SampledFrom([]string{"a", "b", "c", "d"}).Draw(rt, label+"_s")
	p := rapid.SampledFrom([]string{"x", "y", "z"}).Draw(rt, label+"_p")
	return F(s, p)
}

type ruleSpec struct {
	premises   []Fact
	conclusion Fact
	confidence float64
}

func buildEngine(rt *rapid.T) (*Engine, []ruleSpec) {
	numFacts := rapid.IntRange(0, 6).Draw(rt, "numFacts")
	numRules := rapid.IntRange(0, 10).Draw(rt, "numRules")

	// 深度上界覆盖最长链，保证首次 Infer 到达不动点
	e := NewEngine(Config{Method: MethodForwardChaining, MaxDepth: numRules + 1})
	for i := 0; i < numFacts; i++ {
		f := drawFact(rt, fmt.Sprintf("fact_%d", i))
		e.AddFact(f.Subject, f.Predicate, rapid.Float64Range(0, 1).Draw(rt, fmt.Sprintf("fconf_%d", i)))
	}

	specs := make([]ruleSpec, numRules)
	for i := 0; i < numRules; i++ {
		n := rapid.IntRange(1, 3).Draw(rt, fmt.Sprintf("premises_%d", i))
		premises := make([]Fact, n)
		for j := range premises {
			premises[j] = drawFact(rt, fmt.Sprintf("rule_%d_p_%d", i, j))
		}
		specs[i] = ruleSpec{
			premises:   premises,
			conclusion: drawFact(rt, fmt.Sprintf("rule_%d_c", i)),
			confidence: rapid.Float64Range(0, 1).Draw(rt, fmt.Sprintf("rconf_%d", i)),
		}
		e.AddRule(specs[i].premises, specs[i].conclusion, specs[i].confidence)
	}
	return e, specs
}

// firingConfidence 找出产生该步骤的规则置信度；前提与结论相同的规则取最大值
func firingConfidence(specs []ruleSpec, step InferenceStep) (float64, bool) {
	best, found := 0.0, false
	for _, r := range specs {
		if r.conclusion != step.Conclusion || !slices.Equal(r.premises, step.Premises) {
			continue
		}
		if !found || r.confidence > best {
			best, found = r.confidence, true
		}
	}
	return best, found
}

// TestProperty_ForwardChaining_Idempotent 连续两次 Infer，第二次推不出新事实
func TestProperty_ForwardChaining_Idempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e, _ := buildEngine(rt)

		_, err := e.Infer(context.Background())
		require.NoError(rt, err)

		second, err := e.Infer(context.Background())
		require.NoError(rt, err)
		assert.Empty(rt, second)
	})
}

// TestProperty_ForwardChaining_ConfidenceBound 推出事实的置信度不超过 规则置信度 × min(前提置信度)
func TestProperty_ForwardChaining_ConfidenceBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e, specs := buildEngine(rt)

		derived, err := e.Infer(context.Background())
		require.NoError(rt, err)

		for _, step := range e.Trace() {
			ruleConf, ok := firingConfidence(specs, step)
			require.True(rt, ok, "every step comes from a registered rule: %v", step)
			bound := ruleConf * e.Knowledge().MinConfidence(step.Premises)
			assert.LessOrEqual(rt, step.Confidence, bound+1e-12)
			assert.GreaterOrEqual(rt, step.Confidence, 0.0)
		}
		for _, f := range derived {
			assert.True(rt, e.Knowledge().Has(f), "derived facts are merged into the store")
		}
	})
}
