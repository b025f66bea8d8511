package model

import (
	"encoding/json"
	"time"
)

// FinishReason describes why a step or run ended.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishContentFilter FinishReason = "content-filter"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
)

// Usage is token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Add accumulates another step's usage.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// StepStartEvent opens a generation step.
type StepStartEvent struct {
	MessageID string `json:"messageId"`
}

// ToolCallEvent announces a tool call requested by the model.
type ToolCallEvent struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

// ToolResultEvent carries the output of a tool call.
type ToolResultEvent struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

// ToolError is the result payload of a failed tool call.
type ToolError struct {
	Error string `json:"error"`
}

// FinishEvent closes a step or the whole response.
type FinishEvent struct {
	FinishReason FinishReason `json:"finishReason"`
	Usage        Usage        `json:"usage"`
	IsContinued  *bool        `json:"isContinued,omitempty"`
}

// UsageEvent is published once per chat run.
type UsageEvent struct {
	ID            string       `json:"id"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	UserID        string       `json:"user_id,omitempty"`
	Provider      string       `json:"provider"`
	Model         string       `json:"model"`
	State         string       `json:"state"`
	FinishReason  FinishReason `json:"finish_reason,omitempty"`
	ErrorKind     string       `json:"error_kind,omitempty"`
	Steps         int          `json:"steps"`
	ToolCalls     int          `json:"tool_calls"`
	Usage         Usage        `json:"usage"`
	DurationMs    int64        `json:"duration_ms"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ToolExecutionEvent is published for every tool call. Arguments are omitted
// since plugin tools may receive user data.
type ToolExecutionEvent struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Provider      string    `json:"provider"`
	Tool          string    `json:"tool"`
	ToolCallID    string    `json:"tool_call_id"`
	Step          int       `json:"step"`
	Status        string    `json:"status"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}
