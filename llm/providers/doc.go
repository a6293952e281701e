// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
# 概述

包 providers 提供 OpenAI 兼容协议的公共类型与辅助函数，供 openaicompat
与 embedding 等实现复用。

# 核心类型

  - OpenAICompat* 系列 — 请求/响应/content parts 结构体

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为 UPSTREAM_MODEL_ERROR（含 Retryable 标记）
  - TransportError — 网络错误包装
  - ConvertMessagesToOpenAI — Parts 非空时输出 content 数组，否则输出字符串
  - ToLLMChatResponse — OpenAI 兼容响应到 llm.ChatResponse 的转换
  - ChooseModel — 按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
