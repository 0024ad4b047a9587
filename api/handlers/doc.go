// Copyright (c) AgentKernel Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentKernel HTTP API 的请求处理器实现。

# 概述

handlers 包实现认知内核对外暴露的全部 HTTP 端点：知识库、规划与决策、
记忆、快照、运行时配置以及健康检查。所有 Handler 遵循标准 net/http 接口，
通过 Go 1.22 的方法路由注册到 http.ServeMux，并带有 Swagger 注解。

内核本身不加锁，处理器对内核的每次访问都经由 kernel.Owner 串行执行。

# 核心类型

  - KernelHandler: 事实、规则、推理、查询、证明、规划、决策、记忆、调优与统计
  - SnapshotHandler: 快照保存、列表、读取、恢复与删除
  - ConfigHandler: 脱敏配置查看、字段更新、文件重载与回滚
  - EventsHandler: 内核事件 WebSocket 流（按类型过滤，慢订阅者丢弃）
  - HealthHandler: 存活与就绪探针（/health, /healthz, /ready）
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo: 结构化错误信息，含 code、message、retryable 标记

# 错误映射

INVALID_REQUEST 与 UNKNOWN_STRATEGY 为 400，NOT_FOUND 为 404，
PLAN_NOT_FOUND、ACTION_FAILED、SNAPSHOT_CORRUPTED 为 422，TIMEOUT 为 504，
KERNEL_CLOSED 与 STORE_UNAVAILABLE 为 503。
*/
package handlers
