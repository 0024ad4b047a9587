/*
Package main 提供 AgentKernel 服务端程序入口。

# 概述

cmd/agentkernel 启动一个认知内核，并通过 HTTP API 暴露事实、规则、推理、
规划、决策、记忆与快照操作。内核由单一 Owner goroutine 持有，
所有请求排队串行执行。

# 子命令

  - serve    启动 API 与 Metrics 两个监听端口
  - migrate  通过 golang-migrate 管理快照表结构
  - health   探测运行中实例的 /ready
  - version  打印构建信息

# 中间件链

Recovery → RequestID → SecurityHeaders → BodyLimit → RequestLogger →
Metrics → OTelTracing → JWTAuth（配置密钥时）→ RateLimiter。
限流按 JWT subject 或客户端 IP 计数，额度可热更新。

# 关闭顺序

热更新监听 → HTTP → Metrics → 后台任务 → 内核 Owner → 快照存储 →
缓存与 Redis → 数据库 → 遥测。
*/
package main
