// 版权所有 2024 AgentKernel Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 agentkernel serve 的 HTTP 监听器。

Server 包装一个 http.Server：Start 绑定端口后在后台服务，
可选 MaxConnections（x/net netutil）与 TLS；Serve 异常退出时错误发送到 Errors。
ConnStats 通过 ConnState 回调统计活动与累计连接。

Group 把 API 与 metrics 两个监听器当作一个单元：Start 失败会回滚已启动的，
Wait 用 errgroup 等待 ctx 结束或任一监听器失败，Shutdown 并发排空。
*/
package server
