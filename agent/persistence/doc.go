/*
包 persistence 为内核快照（kernel.Snapshot）提供可插拔的持久化存储。

# 存储后端

  - MemorySnapshotStore：进程内存储，适合开发与测试（默认）。
  - FileSnapshotStore：每个快照一个 JSON 文件，临时文件加重命名保证原子写入。
  - RedisSnapshotStore：数据与元信息分键存放，按更新时间的有序集合建立索引。
  - SQLSnapshotStore：通过 GORM 写入 kernel_snapshots 表，事务在死锁等错误时重试。
  - CachedSnapshotStore：包装任意后端的 Redis 读穿透缓存。

所有后端实现同一个 SnapshotStore 接口：Save 为 upsert 并保留首次创建时间，
Load / Delete 对不存在的 ID 返回 ErrNotFound，List 按更新时间倒序。
启用 CleanupConfig 后，后台定期删除超过保留期的快照。

# 使用方式

	store, err := persistence.NewSnapshotStore(persistence.StoreConfig{
	    Type:    persistence.StoreTypeFile,
	    BaseDir: "./data",
	})
	snap, _ := k.Snapshot(ctx)
	err = store.Save(ctx, "nightly", snap)
*/
package persistence
