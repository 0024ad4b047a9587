// Package fixtures 提供测试用的知识库与规划领域
package fixtures

import (
	"fmt"

	"github.com/BaSui01/agentkernel/agent/reasoning"
)

// KnowledgeBase 一组事实与规则
type KnowledgeBase struct {
	Facts []reasoning.WeightedFact
	Rules []reasoning.Rule
}

// KnowledgeSink 接收事实与规则，reasoning.Engine 满足该接口
type KnowledgeSink interface {
	AddFact(subject, predicate string, confidence float64)
	AddRule(premises []reasoning.Fact, conclusion reasoning.Fact, confidence float64)
}

// Load 将知识库写入 sink
func (kb KnowledgeBase) Load(sink KnowledgeSink) {
	for _, f := range kb.Facts {
		sink.AddFact(f.Subject, f.Predicate, f.Confidence)
	}
	for _, r := range kb.Rules {
		sink.AddRule(r.Premises, r.Conclusion, r.Confidence)
	}
}

// Syllogism 苏格拉底三段论：human → mortal → finite，推导出 2 条事实
func Syllogism() KnowledgeBase {
	return KnowledgeBase{
		Facts: []reasoning.WeightedFact{
			{Fact: reasoning.F("socrates", "human"), Confidence: 1},
		},
		Rules: []reasoning.Rule{
			{Premises: []reasoning.Fact{reasoning.F("socrates", "human")}, Conclusion: reasoning.F("socrates", "mortal"), Confidence: 0.9},
			{Premises: []reasoning.Fact{reasoning.F("socrates", "mortal")}, Conclusion: reasoning.F("socrates", "finite"), Confidence: 1},
		},
	}
}

// Chain 生成长度为 n 的规则链 x→s0 … x→sn，前向推理需要 n 轮
func Chain(n int) KnowledgeBase {
	kb := KnowledgeBase{
		Facts: []reasoning.WeightedFact{{Fact: reasoning.F("x", "s0"), Confidence: 1}},
		Rules: make([]reasoning.Rule, 0, n),
	}
	for i := 0; i < n; i++ {
		kb.Rules = append(kb.Rules, reasoning.Rule{
			Premises:   []reasoning.Fact{reasoning.F("x", fmt.Sprintf("s%d", i))},
			Conclusion: reasoning.F("x", fmt.Sprintf("s%d", i+1)),
			Confidence: 1,
		})
	}
	return kb
}
