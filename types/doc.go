/*
Package types 提供认知内核的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent/reasoning、agent/planning、
agent/memory、api 与 cmd 等上层模块提供统一的类型契约。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码、Retryable、Component 标记
  - MemoryCategory: 记忆分区（working / episodic / semantic）

# 主要能力

  - Context 传播：WithKernelID / KernelID
  - 错误工具链：WrapError / AsError / IsErrorCode / IsRetryable
  - 常用错误构造：NewInvalidRequestError / NewNotFoundError
*/
package types
