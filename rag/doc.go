// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
Package rag 提供文档检索所需的向量索引、分块与导入能力。

# 核心类型

  - VectorIndex   — 向量索引接口（EnsureCollection / Upsert / Search / Ping）
  - QdrantStore   — 基于 Qdrant REST API 的实现，按 payload.project 精确过滤
  - PgVectorStore — 基于 Postgres pgvector 扩展的实现（GORM）
  - Hit           — 检索结果，Formatted 输出 "[source] text"
  - Ingester      — 目录导入：加载、分块、向量化、写入

# 分块

SplitText 以字符（rune）为单位切出固定宽度窗口，默认 1000 字符，
去除首尾空白并丢弃空块。
*/
package rag
