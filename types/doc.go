// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
Package types 提供 ragflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、llm、rag、memory、
api 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message / ContentPart — 多轮对话消息（role + 有序 content parts，text 或 image）
  - Error / ErrorCode     — 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - WithRequestID 等      — 请求级上下文传播

# 错误分类

  - INVALID_REQUEST            — 请求缺少 session_id 或 question/messages，进入流水线前拒绝
  - UPSTREAM_MODEL_ERROR       — 模型调用失败或返回空内容，中止本次调用
  - RETRIEVAL_DEGRADED         — 记忆/向量检索不可用，记录日志后继续
  - CHECKPOINT_ERROR           — 检查点存储不可用
  - MEMORY_REGISTRATION_ERROR  — 会话注册失败，吞掉并记录
*/
package types
