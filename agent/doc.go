// Copyright 2024 AgentKernel Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent 是认知内核各组件的根目录，本身不含代码。

# 组件

	┌──────────────────────────────────────────────────────────┐
	│                    kernel (Kernel / Owner)               │
	│        感知 → 推理 → 规划 → 决策 → 执行 → 记忆          │
	├──────────────┬──────────────┬──────────────┬─────────────┤
	│  reasoning   │   planning   │   decision   │  execution  │
	│ 前向/后向链   │ A* BFS DFS   │ 效用/规则/    │ 重试/超时/   │
	│ 与概率推理    │ STRIPS 搜索  │ 多准则选择    │ 环境交互     │
	├──────────────┴──────────────┴──────────────┴─────────────┤
	│                memory（工作 / 情节 / 语义）               │
	├──────────────────────────────────────────────────────────┤
	│      persistence（memory / file / redis / sql / mongo）   │
	└──────────────────────────────────────────────────────────┘

# 并发模型

reasoning、planning、memory、decision 与 kernel.Kernel 都不做内部加锁，
由单一所有者使用。多个调用方共享一个内核时通过 kernel.Owner 串行访问：

	owner := kernel.NewOwner(kernel.New(kernel.DefaultConfig()), 64)
	defer owner.Close()

	derived, err := kernel.Call(ctx, owner, func(ctx context.Context, k *kernel.Kernel) ([]reasoning.Fact, error) {
		return k.Infer(ctx)
	})

# 快照

kernel.Snapshot 导出事实、规则、记忆与调参状态，不含闭包（动作的前置条件与效果、
自定义规则）。persistence 中的 SnapshotStore 按调用方指定的 ID 保存快照。
*/
package agent
