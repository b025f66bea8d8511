// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// StreamCallback is called for each text fragment during streaming.
type StreamCallback func(token string, index int) error

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role        model.Role
	Content     string
	Attachments []model.Attachment

	// Set on assistant messages that requested tools.
	ToolCalls []ToolCall

	// Set on tool result messages.
	ToolCallID string
	ToolName   string
	IsError    bool
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Tools       []mcp.Tool

	// Temperature is sent as given, zero included. Nil leaves the provider
	// default. TopP is omitted when zero.
	Temperature *float64
	TopP        float64

	// JSONObject asks for a JSON object response. Only honored by Complete.
	JSONObject bool
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason model.FinishReason
	LatencyMs  int64
}

// Usage returns the token usage of the response.
func (r *CompletionResponse) Usage() model.Usage {
	return model.Usage{PromptTokens: r.TokensIn, CompletionTokens: r.TokensOut}
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// CompleteStream sends a streaming completion request. Text fragments are
	// passed to callback as they arrive; tool calls are returned once the
	// step is over.
	CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// FromChatMessages converts client history into LLM messages.
func FromChatMessages(msgs []model.ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{
			Role:        m.Role,
			Content:     m.Content,
			Attachments: m.Attachments,
		})
	}
	return out
}

// toolParameters renders an MCP input schema as a JSON Schema object.
func toolParameters(schema mcp.ToolInputSchema) map[string]any {
	params := map[string]any{
		"type":       "object",
		"properties": schema.Properties,
	}
	if schema.Properties == nil {
		params["properties"] = map[string]any{}
	}
	if len(schema.Required) > 0 {
		params["required"] = schema.Required
	}
	if schema.Defs != nil {
		params["$defs"] = schema.Defs
	}
	return params
}

// rawArguments normalizes tool-call arguments to a JSON document.
func rawArguments(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}
