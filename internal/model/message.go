// Package model defines the request, response and event types exchanged with
// clients and the event sink.
package model

import (
	"encoding/json"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Request defaults applied when a field is omitted.
const (
	DefaultContextLength = 4
	DefaultMaxTokens     = 1000
	DefaultTemperature   = 0.4
	DefaultTopP          = 0.8
)

// Attachment is a file the client attached to a message.
type Attachment struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url"`
}

// ChatMessage is one entry of the conversation history.
type ChatMessage struct {
	ID          string       `json:"id,omitempty"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"experimental_attachments,omitempty"`
	CreatedAt   *time.Time   `json:"createdAt,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages      []ChatMessage `json:"messages"`
	Model         string        `json:"model"`
	Provider      string        `json:"provider"`
	SystemPrompt  string        `json:"systemPrompt,omitempty"`
	ContextLength *int          `json:"contextLength,omitempty"`
	MaxTokens     *int          `json:"maxTokens,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"topP,omitempty"`
	Memory        string        `json:"memory,omitempty"`
	Plugins       PluginsField  `json:"plugins,omitempty"`
}

// Settings are the generation settings of a request after defaults.
type Settings struct {
	ContextLength int
	MaxTokens     int
	Temperature   float64
	TopP          float64
}

// Settings resolves the generation settings, applying defaults.
func (r *ChatRequest) Settings() Settings {
	s := Settings{
		ContextLength: DefaultContextLength,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   DefaultTemperature,
		TopP:          DefaultTopP,
	}
	if r.ContextLength != nil {
		s.ContextLength = *r.ContextLength
	}
	if r.MaxTokens != nil && *r.MaxTokens > 0 {
		s.MaxTokens = *r.MaxTokens
	}
	if r.Temperature != nil {
		s.Temperature = *r.Temperature
	}
	if r.TopP != nil {
		s.TopP = *r.TopP
	}
	return s
}

// PluginsField accepts plugin configuration either as a JSON-encoded string
// (what the browser client sends) or as an inline object.
type PluginsField string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PluginsField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PluginsField(s)
		return nil
	}
	if string(data) == "null" {
		*p = ""
		return nil
	}
	*p = PluginsField(data)
	return nil
}

// EncryptRequest is the body of POST /api/encrypt.
type EncryptRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

// TitleRequest is the body of POST /api/completion.
type TitleRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// TitleResponse is returned by POST /api/completion.
type TitleResponse struct {
	Title string `json:"title"`
}

// MemoryRequest is the body of POST /api/memory.
type MemoryRequest struct {
	Messages       []ChatMessage `json:"messages"`
	PreviousMemory []string      `json:"previousMemory,omitempty"`
}

// MemoryResponse is returned by POST /api/memory.
type MemoryResponse struct {
	Memory []string `json:"memory"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is returned by POST /api/search.
type SearchResponse struct {
	Results string `json:"results"`
}
