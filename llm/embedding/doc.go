// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
包 embedding 提供文本嵌入（Embedding）接口与 OpenAI 兼容实现，
用于 recall_documents 步骤的查询向量化以及文档入库时的批量向量化。

# 核心接口

  - Provider：统一嵌入接口，定义 Embed、EmbedQuery、EmbedDocuments。
  - EmbeddingRequest / EmbeddingResponse：标准化的请求与响应模型。
  - BaseProvider：公共基类，封装 HTTP 请求、错误映射与分批。

# 主要能力

  - 默认模型 text-embedding-3-small，维度 1536，与向量集合配置一致。
  - 批量嵌入按 MaxBatch 分批，结果保持输入顺序。
  - 空输入直接返回空结果，不发起网络请求。
  - 上游错误统一映射为 EMBEDDING_ERROR（429/5xx 标记可重试）。

# 使用方式

	cfg := embedding.DefaultOpenAIConfig()
	cfg.APIKey = "sk-..."
	provider := embedding.NewOpenAIProvider(cfg)

	vec, err := provider.EmbedQuery(ctx, "搜索关键词")
	vecs, err := provider.EmbedDocuments(ctx, []string{"文档1", "文档2"})
*/
package embedding
