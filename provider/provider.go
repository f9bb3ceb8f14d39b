// Package provider defines the model API interface the agent loop talks to.
package provider

import (
	"context"
	"fmt"
)

// Role identifies the sender of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single turn in a conversation. Assistant turns that invoked
// tools carry the calls so the next request can replay them; the wire format
// requires every tool result to reference a tool_use in an earlier turn.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // set on assistant turns that invoked tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool results
	IsError    bool       `json:"is_error,omitempty"`     // tool result reported failure
}

// ToolDef describes a tool the model may invoke.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ToolCall is a structured tool invocation returned by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a completed provider response: free-form text, zero or more
// tool invocations, and the cost the call incurred.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
	CostUSD   float64    `json:"cost_usd"`
}

// StatusError is an HTTP-level failure from the model API. The resilience
// layer treats 4xx as caller bugs (propagated, never retried, never counted
// against the circuit) and 5xx as service degradation.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model API error (status %d): %s", e.Status, e.Body)
}

// ClientError reports whether this is a 4xx caller error.
func (e *StatusError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// Provider is a model backend that powers agent reasoning.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "mock").
	Name() string

	// Chat sends a system prompt, conversation, and tool schema, and returns
	// the complete response.
	Chat(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error)
}
