// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
Package memory 提供按会话组织的长期对话记忆。

会话键格式为 "<project>::<session_id>"，project 为空时使用 "default"。

# 实现

  - ZepStore       — Zep REST API（用户注册 + 会话消息）
  - RedisStore     — Redis 列表，按时间顺序保存消息并裁剪到上限
  - InMemoryStore  — 进程内实现，用于测试与本地开发
  - CachedRegistrar — 基于 go-cache 的注册去重包装，避免每次调用都注册会话

注册（EnsureSession）是幂等的，调用方应将其失败视为非致命错误。
*/
package memory
