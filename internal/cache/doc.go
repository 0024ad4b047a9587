// 版权所有 2024 AgentKernel Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 是快照存储前面的 Redis 读穿透缓存。

值以 JSON 保存，所有键加 KeyPrefix。Redis 客户端由调用方创建并负责关闭，
Manager.Close 只让后续调用返回 ErrClosed。

GetOrLoad 在未命中时回源并回填，同一个键的并发未命中由 singleflight
合并为一次加载。解码失败的条目按未命中处理并被删除。

命中与未命中同时计入 Stats 与可选的 Observer（metrics.Collector）。
*/
package cache
