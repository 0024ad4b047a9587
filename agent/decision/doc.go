/*
Package decision 提供动作选择策略。

Maker 根据配置的策略从候选动作中选择一个：

  - utility_based: 选择效用最高的动作。
  - rule_based: 按优先级遍历规则，取第一条条件成立且动作可选的规则。
  - multi_criteria: 按归一化权重加权各评价准则。

策略无法给出结果时随机选择，并在历史记录中标记 Fallback。
DecideUnderUncertainty 在期望效用上叠加按风险偏好缩放的方差项。
*/
package decision
