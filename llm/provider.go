package llm

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/types"
)

// Role 复用全局消息角色定义。
type Role = types.Role

const (
	RoleSystem    = types.RoleSystem
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
)

// Message 是发往模型的一条消息。
// Parts 非空时按多段内容发送（content 为数组），否则发送纯文本 Content。
type Message struct {
	Role    Role                `json:"role"`
	Content string              `json:"content,omitempty"`
	Parts   []types.ContentPart `json:"parts,omitempty"`
}

// TextMessage 创建纯文本消息。
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// PartsMessage 创建多段内容消息。
func PartsMessage(role Role, parts ...types.ContentPart) Message {
	return Message{Role: role, Parts: parts}
}

type ChatRequest struct {
	TraceID     string        `json:"trace_id,omitempty"`
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// FirstText 返回第一个 choice 的文本内容（已去除首尾空白）。
func (r *ChatResponse) FirstText() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	msg := r.Choices[0].Message
	if msg.Content != "" {
		return strings.TrimSpace(msg.Content)
	}
	var sb strings.Builder
	for _, p := range msg.Parts {
		if p.Type == types.ContentText {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 定义了统一的 LLM 适配接口。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 执行轻量级健康检查
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}
