// 版权所有 2024 AgentKernel Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 execution 在环境中执行规划出的动作，并负责超时、重试与失败恢复。

# 核心接口

  - Environment：按动作名执行一步，返回输出或错误。EnvironmentFunc 为函数适配器。
  - StateObserver：可选接口，Monitor 借此在执行前后捕获环境状态。
  - Executor：执行器，维护成功/失败/超时计数与有界执行历史。

# 结果状态

环境返回 nil 为 success；返回包装 ErrActionFailed 的错误为 failure；
超过 Config.Timeout 为 timeout；其余错误（含 panic 与调用方取消）为 error。

# 恢复策略

  - ExecuteWithRetry：指数退避重试，间隔受 MaxRetryDelay 限制，可被 ctx 取消。
  - ExecuteSafe：重试耗尽后依次尝试 errors.Is 匹配的错误处理器与 fallback 动作。
  - ExecuteSequence：顺序执行，可在首个失败处停止。
*/
package execution
