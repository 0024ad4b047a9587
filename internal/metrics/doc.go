// 版权所有 2024 AgentKernel Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、认知内核、
快照存储、缓存与数据库。

# 核心类型

  - Collector：指标收集器。实现 kernel.Recorder（推理、规划、记忆、
    执行与认知循环）以及 cache.Observer（命中/未命中）。

# 注册表

默认注册到 prometheus.DefaultRegisterer；测试或多实例场景可通过
WithRegisterer 注入独立的 Registry。同一注册表上重复创建相同
namespace 的 Collector 会 panic。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 内核指标：事实/规则写入、推理次数与推导事实数、规划结果与扩展节点数、
    各类记忆的存储/召回/淘汰、动作状态与耗时、循环成败与是否重规划。
  - 队列指标：内核请求队列长度与容量。
  - 快照指标：按 backend/operation/status 计数与耗时。
  - 缓存与数据库指标：命中率、连接池状态、查询耗时。
*/
package metrics
