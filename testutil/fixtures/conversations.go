// =============================================================================
// 📦 测试数据工厂 - 对话与检索数据
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/types"
)

// UserMessage 创建用户文本消息
func UserMessage(text string) types.Message {
	return types.NewTextMessage(types.RoleUser, text)
}

// AssistantMessage 创建助手文本消息
func AssistantMessage(text string) types.Message {
	return types.NewTextMessage(types.RoleAssistant, text)
}

// ImageMessage 创建带图片与文本的用户消息
func ImageMessage(imageURL, text string) types.Message {
	return types.Message{
		Role: types.RoleUser,
		Content: []types.ContentPart{
			{Type: types.ContentImage, ImageURL: imageURL},
			types.TextPart(text),
		},
	}
}

// SimpleConversation 返回 user/assistant/user 三轮对话，最后一轮问题为 last
func SimpleConversation(last string) []types.Message {
	return []types.Message{
		UserMessage("hello"),
		AssistantMessage("Hi, how can I help?"),
		UserMessage(last),
	}
}

// ScoredHits 返回 doc1(0.9) 与 doc2(0.5) 两条命中
func ScoredHits() []rag.Hit {
	return []rag.Hit{
		{Text: "doc1", Score: 0.9},
		{Text: "doc2", Score: 0.5},
	}
}
