// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 ragflow HTTP API 的请求处理器实现。

# 概述

所有 Handler 均遵循标准 net/http 接口。流水线相关的处理器通过 Pipeline
接口调用 workflow.Engine，在引擎未初始化时统一返回 503。

# 核心类型

  - PipelineHandler  — /ask、/chat（JSON 与 SSE）、/chat/ws 与检查点查询
  - ProjectHandler   — 项目注册表（列表与创建）
  - IngestHandler    — 文档导入
  - HealthHandler    — /health、/healthz、/ready、/version
  - ErrorResponse    — 统一错误结构（code + message + detail）

# 主要能力

  - ErrorCode → HTTP 状态码映射（WriteError / WriteErrorFrom）
  - 请求解码：DecodeJSONBody（1 MB 限制 + 严格模式）
  - SSE 与 WebSocket 流式输出每一步的状态增量
*/
package handlers
