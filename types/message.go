package types

import (
	"encoding/json"
	"strings"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType is the variant of a content part.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// ContentPart is one element of a message body.
type ContentPart struct {
	Type     ContentType `json:"type" validate:"required,oneof=text image"`
	Text     string      `json:"text,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentText, Text: text}
}

// Message represents a conversation turn.
type Message struct {
	Role    Role          `json:"role" validate:"required,oneof=user assistant system"`
	Content []ContentPart `json:"content" validate:"dive"`
}

// UnmarshalJSON accepts content either as a list of parts or as a plain
// string, which becomes a single text part.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = nil

	trimmed := strings.TrimSpace(string(raw.Content))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var text string
		if err := json.Unmarshal(raw.Content, &text); err != nil {
			return err
		}
		m.Content = []ContentPart{TextPart(text)}
		return nil
	default:
		return json.Unmarshal(raw.Content, &m.Content)
	}
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentPart{TextPart(text)}}
}

// LastText returns the text of the last text-typed part, or "" when none exists.
func (m Message) LastText() string {
	text, _ := m.lastText()
	return text
}

func (m Message) lastText() (string, bool) {
	for i := len(m.Content) - 1; i >= 0; i-- {
		if m.Content[i].Type == ContentText {
			return m.Content[i].Text, true
		}
	}
	return "", false
}

// Text joins every text part with newlines.
func (m Message) Text() string {
	var parts []string
	for _, p := range m.Content {
		if p.Type == ContentText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// LastUserText scans messages newest to oldest and returns the last text part
// of the newest user turn that has one. User turns without a text part, such
// as image-only turns, are skipped.
func LastUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != RoleUser {
			continue
		}
		if text, ok := messages[i].lastText(); ok {
			return text
		}
	}
	return ""
}

// CloneMessages deep-copies a message slice.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = Message{Role: m.Role, Content: append([]ContentPart(nil), m.Content...)}
	}
	return out
}
