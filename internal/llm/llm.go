// Package llm defines the opaque language-model capability used by the
// supervisor and the workers: a chat call with optional tools, and a bounded
// tool-use loop that can return a structured result.
package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a model exchange. ToolUse is set on assistant
// messages that call tools; ToolResult on the user message answering them.
type Message struct {
	Role       Role         `json:"role"`
	Content    string       `json:"content"`
	ToolUse    []ToolUse    `json:"tool_use,omitempty"`
	ToolResult []ToolResult `json:"tool_result,omitempty"`
}

type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ToolDefinition describes a callable tool. InputSchema is a JSON schema
// object with "properties" and "required".
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
}

type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

type Response struct {
	Content    string
	ToolCalls  []ToolUse
	StopReason StopReason
	Usage      Usage
}

// Model is a chat-capable language model backend.
type Model interface {
	Chat(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Tool is an external capability the model may call. Failures are reported
// in the returned string so the model can decide how to proceed.
type Tool interface {
	Definition() ToolDefinition
	Call(ctx context.Context, input json.RawMessage) string
}
