/*
Package planning 提供状态空间规划器。

给定初始状态、目标（部分状态）与一组动作描述（前置条件、效果、代价），
Planner 搜索一条动作名序列，使依次应用后的状态满足目标；预算内找不到时返回空序列。

搜索算法通过 Algorithm 查表选择：

  - a_star: 按 f = g + h 排序的优先队列，同 f 值按入队顺序；启发函数可采纳时结果代价最小。
  - bfs: FIFO，找到的计划步数最少。
  - dfs: LIFO 并记录深度，仅用于可行性检查。
  - strips: 使用 a_star。

所有算法共享：以 MaxNodes 计的节点预算、以 CanonicalKey 为键的访问集合（单次规划内
同一状态不会被展开两次）、以及部分匹配的目标判定。MaxPlanDepth 可额外限制计划长度。
*/
package planning
