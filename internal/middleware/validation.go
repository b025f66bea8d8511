package middleware

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// Request size limits.
const (
	MaxMessages       = 500
	MaxMessageContent = 100000
	MaxAttachments    = 10
	MaxMemoryEntries  = 200
	MaxQueryLength    = 500
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) > MaxMessageContent {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateMessages validates a conversation history.
func ValidateMessages(msgs []model.ChatMessage) error {
	if len(msgs) > MaxMessages {
		return fmt.Errorf("at most %d messages are allowed", MaxMessages)
	}
	for i, m := range msgs {
		switch m.Role {
		case model.RoleUser, model.RoleAssistant, model.RoleSystem:
		default:
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
		if err := ValidateMessageContent(m.Content); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if len(m.Attachments) > MaxAttachments {
			return fmt.Errorf("message %d has too many attachments", i)
		}
	}
	return nil
}

// ValidateMemory validates a list of remembered facts.
func ValidateMemory(memory []string) error {
	if len(memory) > MaxMemoryEntries {
		return fmt.Errorf("at most %d memory entries are allowed", MaxMemoryEntries)
	}
	for _, m := range memory {
		if err := ValidateMessageContent(m); err != nil {
			return err
		}
	}
	return nil
}

// ValidateQuery validates a search query.
func ValidateQuery(query string) error {
	if len(query) > MaxQueryLength {
		return errors.New("query exceeds maximum length")
	}
	if !utf8.ValidString(query) {
		return errors.New("query must be valid UTF-8")
	}
	return nil
}
