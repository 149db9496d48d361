package models

import (
	"encoding/json"
	"strings"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolInvocation is a request from the reasoning engine to run a tool.
type ToolInvocation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Arguments is either a JSON object or a JSON string containing one.
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsJSON returns the argument payload as raw object JSON, unwrapping
// the string-encoded form used by chat-completion style APIs.
func (t ToolInvocation) ArgumentsJSON() []byte {
	raw := []byte(strings.TrimSpace(string(t.Arguments)))
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(strings.TrimSpace(s))
		}
	}
	return raw
}

// ConversationMessage is one entry of the conversation history.
type ConversationMessage struct {
	Role       Role             `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []ToolInvocation `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// Usage is the token accounting reported by the reasoning engine.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Add returns the sum of two usage records.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}
