// =============================================================================
// 📦 测试数据工厂 - LLM 响应测试数据
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/types"
)

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "gpt-4o-mini",
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.TextMessage(types.RoleAssistant, content),
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		CreatedAt: time.Now(),
	}
}

// EmptyResponse 返回没有 choice 的响应
func EmptyResponse() *llm.ChatResponse {
	return &llm.ChatResponse{ID: "resp-empty", Provider: "mock", Model: "gpt-4o-mini"}
}

// PartsResponse 返回以多段内容表示的响应
func PartsResponse(texts ...string) *llm.ChatResponse {
	parts := make([]types.ContentPart, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, types.TextPart(t))
	}
	resp := SimpleResponse("")
	resp.Choices[0].Message = llm.PartsMessage(types.RoleAssistant, parts...)
	return resp
}
