// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "strings"

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	// RoleSystem is the system prompt role.
	RoleSystem Role = "system"
	// RoleUser is the end-user role.
	RoleUser Role = "user"
	// RoleAssistant is the model role.
	RoleAssistant Role = "assistant"
	// RoleTool is the role of a tool-result message answering a ToolCall.
	RoleTool Role = "tool"
)

// Valid reports whether the role is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE
// =============================================================================

// TokenUsage holds provider-reported token counts for one call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input + output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Message is one turn of a conversation.
//
// Assistant messages may carry an ordered list of tool calls. A tool message
// always carries the ToolCallID of the call it answers.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the ToolCall it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Usage is the provider-reported token usage for the call that produced
	// this message. Only meaningful on assistant messages.
	Usage *TokenUsage `json:"usage,omitempty"`

	// LogProbs holds per-token log-probabilities when the provider exposes
	// them. Only meaningful on assistant messages.
	LogProbs []float64 `json:"logprobs,omitempty"`
}

// System returns a system message with the given content.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user message with the given content.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns an assistant message with the given content.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResult returns a tool message answering the given call ID.
func ToolResult(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// HasToolCalls reports whether the message requests any tool executions.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// TrimmedContent returns the content with surrounding whitespace removed.
func (m Message) TrimmedContent() string {
	return strings.TrimSpace(m.Content)
}

// LastUserContent returns the content of the most recent user message, or ""
// if the slice contains none. Used by the pre-router to classify the query.
func LastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
