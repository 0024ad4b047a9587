// Package config 提供 AgentKernel 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 AGENTKERNEL_）加载，
// Validate 校验内核各组件的方法、算法与策略名称。
// HotReloadManager 借助 fsnotify 监听配置文件，重载时校验、
// 记录字段级变更并保留有界历史以便回滚。
package config
