// 版权所有 2024 AgentKernel Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 reasoning 提供带置信度的事实/规则知识库与推理引擎。

# 概述

本包回答"已知事实与规则能推出什么"。事实是 (subject, predicate) 二元组并附带
[0,1] 置信度；规则由一组前提、一个结论与规则置信度组成。推理引擎按配置的方法
运行，推出的新事实会合并回知识库，而不仅是返回。

# 核心类型

  - KnowledgeStore: 事实与置信度，保留插入顺序，按值去重。
  - Engine: 知识库 + 规则集 + 推理轨迹，提供 AddFact / AddRule / Infer /
    Query / Explain / Clear / Prove。
  - Strategy / StrategyRegistry: 推理方法的查找表，方法名未注册时
    Infer 记录告警并返回空结果。

# 推理方法

  - forward_chaining: 单调不动点计算，以 MaxDepth 轮为上界；推出事实的置信度为
    rule.Confidence × min(前提置信度)。连续两次 Infer，第二次返回空集。
  - backward_chaining: 作为整库推理时返回空集；目标驱动证明使用 Engine.Prove。
  - probabilistic: 扩展点，返回空集。

# 并发模型

Engine 不做内部加锁，假定单一所有者。多调用方共享时通过 agent/kernel 中的
Owner 以消息传递串行化访问。
*/
package reasoning
