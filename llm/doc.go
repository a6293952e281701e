// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
Package llm 提供大语言模型接入层的请求/响应模型与 Provider 抽象。

# 概述

流水线的 reason 步骤只依赖 [Provider] 接口，具体服务商实现位于
llm/providers 子包。多轮对话时用户提示以 content parts 数组发送，
单轮时以纯文本发送。

# 核心类型

  - [Provider]：Completion / HealthCheck / Name
  - [Message]：Role + Content（纯文本）或 Parts（多段内容）
  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [HealthStatus]：健康检查状态

# 相关子包

  - llm/providers：OpenAI 兼容协议的公共类型与错误映射
  - llm/providers/openaicompat：OpenAI 兼容 Chat Completions 实现
  - llm/embedding：文本嵌入 Provider
  - llm/retry：指数退避重试
*/
package llm
