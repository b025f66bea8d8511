package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

const (
	// StreamName is the name of the chat events stream.
	StreamName = "CHAT_EVENTS"

	// SubjectPrefix is the prefix for all chat event subjects.
	SubjectPrefix = "chat"

	defaultPublishTimeout = 2 * time.Second
)

// EventStream publishes usage and tool execution events to JetStream.
type EventStream struct {
	js      jetstream.JetStream
	timeout time.Duration
}

// NewEventStream creates an event stream on the client's JetStream context.
func NewEventStream(client *Client) *EventStream {
	return newEventStream(client.JetStream())
}

func newEventStream(js jetstream.JetStream) *EventStream {
	return &EventStream{js: js, timeout: defaultPublishTimeout}
}

// EnsureStream ensures the chat events stream exists with proper configuration.
func (s *EventStream) EnsureStream(ctx context.Context) error {
	_, err := s.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = s.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		Description: "Chat usage and tool execution events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// UsageSubject returns the subject for a provider's usage events.
func UsageSubject(provider string) string {
	return fmt.Sprintf("%s.usage.%s", SubjectPrefix, subjectToken(provider))
}

// ToolSubject returns the subject for a tool's execution events.
func ToolSubject(tool string) string {
	return fmt.Sprintf("%s.tool.%s", SubjectPrefix, subjectToken(tool))
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// PublishUsage publishes the usage event of a chat run.
func (s *EventStream) PublishUsage(ctx context.Context, ev *model.UsageEvent) error {
	return s.publish(ctx, UsageSubject(ev.Provider), ev.ID, ev)
}

// PublishToolExecution publishes the event of a single tool call.
func (s *EventStream) PublishToolExecution(ctx context.Context, ev *model.ToolExecutionEvent) error {
	return s.publish(ctx, ToolSubject(ev.Tool), ev.ID, ev)
}

func (s *EventStream) publish(ctx context.Context, subject, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var opts []jetstream.PublishOpt
	if id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}

	if _, err := s.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
