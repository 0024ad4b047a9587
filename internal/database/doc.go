// 版权所有 2024 AgentKernel Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为 SQL 快照存储提供 GORM 连接池。

Open 按驱动名（postgres / mysql / sqlite）选择方言并返回 PoolManager。
SQLite 走 database/sql 驱动名 "sqlite"，由二进制引入 modernc.org/sqlite 注册。

PoolManager 负责：

  - 应用 PoolConfig 中的连接上限与生命周期；
  - 后台探活，结果通过 Health 读取，状态变化时记录日志；
  - WithTransactionRetry 只对连接中断、死锁或序列化冲突、锁等待三类错误重试，
    其余错误原样返回；
  - GetStats 提供 db_pool_gauge 任务上报的连接数与占用率。

Instrument 在 GORM 回调链上计时，按操作类型交给 QueryObserver（metrics.Collector）。
*/
package database
