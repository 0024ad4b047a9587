// 版权所有 2024 AgentKernel Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 memory 提供带重要性遗忘的情节记忆，以及工作记忆与语义记忆。

# 记忆分区

  - 工作记忆：固定大小的环形缓冲，满时丢弃最旧条目。
  - 情节记忆：容量受限的有序缓冲，满时先遗忘重要性最低的一条再写入。
  - 语义记忆：无上限的 key -> item 表，key 取载荷中的 "key" 字段，缺省为生成的 ID。

# 重要性与遗忘

重要性 = priority × (1 + accessCount) × 1/(1 + 年龄小时数)。三者相乘，任一维度
极端时都能主导结果，例如 priority 为 0 的条目总是最先被遗忘。分数相同时遗忘最早写入的条目。

# 召回

Recall 用可插拔的 SimilarityFunc 为每个条目打分，只保留不低于阈值的条目，按分数降序
返回前 k 条。所有过阈值的条目（而不只是返回的前 k 条）都会增加访问计数。

# 并发模型

Memory 不做内部加锁，由单一所有者使用；多调用方场景通过 agent/kernel.Owner 串行化。
*/
package memory
