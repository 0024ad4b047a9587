// Copyright 2024 AgentKernel Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package testutil 提供 AgentKernel 测试共用的辅助函数。

  - TestContext：随测试结束取消、默认 30 秒超时的上下文
  - AssertEventuallyTrue：10ms 间隔轮询条件
  - DoJSON / DecodeData：对 HTTP API 发请求并解出 {"success","data"} 信封

子包：

  - testutil/fixtures：知识库与规划领域样例（三段论、规则链、走廊、开门取钥匙）
  - testutil/mocks：Recorder，记录内核、快照存储与数据库的指标事件

子包只依赖 reasoning、planning 等叶子包，内核包的测试也可以引用；
根包不引用任何 agentkernel 包。

	ctx := testutil.TestContext(t)
	code, body := testutil.DoJSON(t, nil, http.MethodPost, api+"/api/v1/facts", fact)
	stats := testutil.DecodeData[map[string]any](t, body)
*/
package testutil
