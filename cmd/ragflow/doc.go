// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
Package main 提供 RAGFlow 服务端程序入口。

# 概述

cmd/ragflow 装配检查点存储、长期记忆、向量索引、向量化与对话模型，
编译四步流水线（recall_memory → recall_documents → reason →
commit_memory），并通过 HTTP 暴露 ask、chat（SSE / WebSocket）、
检查点查询、项目注册与文档导入接口。

# 子命令

  - serve：启动 HTTP 服务，SIGINT/SIGTERM 时优雅关闭
  - migrate：应用内嵌的 Postgres 检查点表迁移
  - ingest：离线导入文档目录
  - health、version、help

# 中间件链

Recovery → RequestID → SecurityHeaders → RequestLogger → Metrics →
OTelTracing → CORS → RateLimiter（基于 IP）→ APIKeyAuth。
探活与 /metrics 路径免鉴权。

# 降级

共享连接或流水线初始化失败时服务仍然启动：对话与导入接口返回 503，
/health 报告失败的依赖。版本信息 Version、BuildTime、GitCommit
通过 ldflags 注入。
*/
package main
