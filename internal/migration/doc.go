// 版权所有 2024 AgentKernel Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 SQL 快照存储的表结构（kernel_snapshots），
基于 golang-migrate，支持 PostgreSQL、MySQL 与 SQLite。

迁移文件按方言内嵌（embed.FS），版本记录在 agentkernel_schema_migrations。
DefaultMigrator 实现 Migrator 接口：Up/Down/DownAll/Steps/Goto/Force 改变版本，
Version/Status/Info 只读查询，Check 在 Schema 脏或落后时返回
ErrSchemaDirty / ErrSchemaBehind，便于部署前校验。
上下文取消会请求 golang-migrate 在当前迁移完成后停止。

URLFromDatabaseConfig 把应用配置的 database 段转换为迁移连接串；
CLI 为 agentkernel migrate 子命令提供终端输出。
SQLite 使用纯 Go 的 modernc.org/sqlite 驱动，无需 CGO。
*/
package migration
