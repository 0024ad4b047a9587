// 版权所有 2024 AgentKernel Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 kernel 将推理、规划、记忆、决策与执行组合为一个认知内核。

# 核心类型

  - Kernel：组件门面。每个操作开启一个 OpenTelemetry span，并向 Recorder 上报指标。
  - Cycle：一次 感知 → 推理 → 规划 → 执行 → 记忆 循环，动作失败时重规划一次。
  - Snapshot：事实、规则与全部记忆的纯数据快照，可持久化后用 Restore 恢复。
  - Owner：单一 goroutine 持有 Kernel，调用方通过 Do / Call 提交闭包。

# 并发模型

Kernel 及其组件均不加锁。多个调用方（例如 HTTP 处理器）共享一个内核时，
全部访问经由 Owner 的请求队列串行化，不存在跨 goroutine 的共享可变状态。
*/
package kernel
