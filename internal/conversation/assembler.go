// Package conversation assembles the bounded context sent to a model.
package conversation

import (
	"slices"
	"strings"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// MemoryPrefix introduces the memory pseudo-message.
const MemoryPrefix = "Remembering information... "

// Input is everything the assembler needs from a request.
type Input struct {
	History             []model.ChatMessage
	ContextLength       int
	Memory              string
	SystemPrompt        string
	DefaultSystemPrompt string
}

// Context is the assembled model input.
type Context struct {
	Messages     []model.ChatMessage
	SystemPrompt string
}

// Assemble keeps the last ContextLength history entries, prepends the memory
// pseudo-message when memory is non-empty and resolves the system prompt.
// The caller's history is never modified.
func Assemble(in Input) (Context, error) {
	prompt := in.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = in.DefaultSystemPrompt
	}
	if strings.TrimSpace(prompt) == "" {
		return Context{}, chaterr.New(chaterr.KindConfiguration, "No system prompt configured")
	}

	tail := Tail(in.History, in.ContextLength)

	messages := make([]model.ChatMessage, 0, len(tail)+1)
	if mem := strings.TrimSpace(in.Memory); mem != "" {
		messages = append(messages, MemoryMessage(mem))
	}
	messages = append(messages, tail...)

	return Context{Messages: messages, SystemPrompt: prompt}, nil
}

// Tail returns a copy of the last n messages in order. n <= 0 yields none.
func Tail(history []model.ChatMessage, n int) []model.ChatMessage {
	if n <= 0 || len(history) == 0 {
		return []model.ChatMessage{}
	}
	start := max(len(history)-n, 0)

	out := make([]model.ChatMessage, 0, len(history)-start)
	for _, m := range history[start:] {
		m.Attachments = slices.Clone(m.Attachments)
		out = append(out, m)
	}
	return out
}

// MemoryMessage returns the system pseudo-message carrying remembered facts.
func MemoryMessage(memory string) model.ChatMessage {
	return model.ChatMessage{
		Role:    model.RoleSystem,
		Content: MemoryPrefix + memory,
	}
}
