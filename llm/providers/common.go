package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/types"
)

// MapHTTPError 将上游 HTTP 状态码映射为带重试标记的 UPSTREAM_MODEL_ERROR。
func MapHTTPError(status int, msg string, provider string) *types.Error {
	err := types.Errorf(types.ErrUpstreamModel, "%s returned status %d: %s", provider, status, msg).
		WithHTTPStatus(status).
		WithProvider(provider)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		err.WithHTTPStatus(http.StatusBadGateway)
	case status == http.StatusTooManyRequests:
		err.WithRetryable(true)
	case status == http.StatusGatewayTimeout:
		err.Code = types.ErrUpstreamTimeout
		err.WithRetryable(true)
	case status >= 500:
		err.WithRetryable(true)
	}
	return err
}

// TransportError 包装网络层错误。
func TransportError(err error, provider string) *types.Error {
	return types.NewError(types.ErrUpstreamModel, err.Error()).
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider)
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp OpenAICompatErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	return strings.TrimSpace(string(data))
}

// OpenAI 兼容 API 通用类型

// OpenAICompatPart 表示 content 数组中的一段。
type OpenAICompatPart struct {
	Type     string                `json:"type"`
	Text     string                `json:"text,omitempty"`
	ImageURL *OpenAICompatImageURL `json:"image_url,omitempty"`
}

// OpenAICompatImageURL 表示图片片段的地址。
type OpenAICompatImageURL struct {
	URL string `json:"url"`
}

// OpenAICompatMessage 表示 OpenAI 兼容的消息格式。
// Content 为 string 或 []OpenAICompatPart。
type OpenAICompatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// OpenAICompatRequest 表示 OpenAI 兼容的聊天完成请求.
type OpenAICompatRequest struct {
	Model       string                `json:"model"`
	Messages    []OpenAICompatMessage `json:"messages"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Temperature float32               `json:"temperature"`
	Stop        []string              `json:"stop,omitempty"`
}

// OpenAICompatResponseMessage 是响应中的消息，content 延迟解析。
type OpenAICompatResponseMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// OpenAICompatChoice 表示 OpenAI 兼容响应中的单个选项.
type OpenAICompatChoice struct {
	Index        int                         `json:"index"`
	FinishReason string                      `json:"finish_reason"`
	Message      OpenAICompatResponseMessage `json:"message"`
}

// OpenAICompatUsage 表示 OpenAI 兼容响应中的 token 用量.
type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAICompatResponse 表示 OpenAI 兼容的聊天完成响应.
type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
	Created int64                `json:"created,omitempty"`
}

// OpenAICompatErrorResp 表示 OpenAI 兼容的错误响应.
type OpenAICompatErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ConvertMessagesToOpenAI 将 llm.Message 切片转换为 OpenAI 兼容格式.
func ConvertMessagesToOpenAI(msgs []llm.Message) []OpenAICompatMessage {
	out := make([]OpenAICompatMessage, 0, len(msgs))
	for _, m := range msgs {
		oa := OpenAICompatMessage{Role: string(m.Role), Content: m.Content}
		if len(m.Parts) > 0 {
			parts := make([]OpenAICompatPart, 0, len(m.Parts))
			for _, p := range m.Parts {
				switch p.Type {
				case types.ContentImage:
					parts = append(parts, OpenAICompatPart{
						Type:     "image_url",
						ImageURL: &OpenAICompatImageURL{URL: p.ImageURL},
					})
				default:
					parts = append(parts, OpenAICompatPart{Type: "text", Text: p.Text})
				}
			}
			oa.Content = parts
		}
		out = append(out, oa)
	}
	return out
}

// ToLLMChatResponse 将 OpenAI 兼容的响应转换为 llm.ChatResponse.
func ToLLMChatResponse(oa OpenAICompatResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      decodeResponseMessage(c.Message),
		})
	}
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  choices,
	}
	if oa.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return resp
}

func decodeResponseMessage(m OpenAICompatResponseMessage) llm.Message {
	msg := llm.Message{Role: llm.RoleAssistant}
	if len(m.Content) == 0 {
		return msg
	}

	var text string
	if err := json.Unmarshal(m.Content, &text); err == nil {
		msg.Content = text
		return msg
	}

	var parts []OpenAICompatPart
	if err := json.Unmarshal(m.Content, &parts); err == nil {
		for _, p := range parts {
			if p.Type == "text" {
				msg.Parts = append(msg.Parts, types.TextPart(p.Text))
			}
		}
	}
	return msg
}

// ChooseModel 根据请求和默认值选择模型
func ChooseModel(req *llm.ChatRequest, defaultModel, fallbackModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}

// BearerTokenHeaders 是标准的 Bearer token 认证 header 构建函数。
func BearerTokenHeaders(r *http.Request, apiKey string) {
	r.Header.Set("Authorization", "Bearer "+apiKey)
	r.Header.Set("Content-Type", "application/json")
}
