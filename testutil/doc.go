// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 ragflow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext
  - 异步断言: AssertEventuallyTrue / WaitFor
  - 流式辅助: CollectUpdates 收集流水线更新

# 子包

  - testutil/mocks: MockProvider（LLM）、MockMemoryStore（长期记忆）、
    MockEmbedder 与 MockVectorIndex（检索），均记录调用并支持错误注入
  - testutil/fixtures: 对话消息、检索命中与模型响应样例
*/
package testutil
