// Package pool 提供有界 worker 池与周期任务调度，
// 用于快照自动保存、过期快照清理、连接池指标采样等后台维护任务。
//
// 内核本身不经过该池：所有内核访问仍由 kernel.Owner 串行化，
// 维护任务通过 Owner.Do 提交对内核的读写。
package pool
