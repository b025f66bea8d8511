// Package stream encodes orchestrator output for the browser client.
//
// Two encodings are supported: the line-oriented data stream protocol that
// the chat UI consumes by default, and Server-Sent Events for clients that
// send Accept: text/event-stream. Every write is flushed immediately.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// Writer receives the events of one chat run in order.
type Writer interface {
	StartStep(messageID string) error
	Text(delta string) error
	ToolCall(ev model.ToolCallEvent) error
	ToolResult(ev model.ToolResultEvent) error
	Error(message string) error
	FinishStep(ev model.FinishEvent) error
	Finish(ev model.FinishEvent) error
}

// Data stream part codes.
const (
	PartText       = '0'
	PartError      = '3'
	PartToolCall   = '9'
	PartToolResult = 'a'
	PartFinish     = 'd'
	PartFinishStep = 'e'
	PartStartStep  = 'f'
)

// SSE event names.
const (
	EventStartStep  = "step_start"
	EventText       = "text"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventError      = "error"
	EventFinishStep = "step_finish"
	EventFinish     = "finish"
)

// DataStreamHeader marks responses encoded with the data stream protocol.
const DataStreamHeader = "X-Vercel-AI-Data-Stream"

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// ErrEncode marks a value that could not be encoded. Nothing is written
// to the stream in that case.
var ErrEncode = errors.New("stream: encode")

// Negotiate picks an encoding from the Accept header, writes the response
// headers and returns the matching Writer. No status line is written.
func Negotiate(w http.ResponseWriter, r *http.Request) (Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		w.Header().Set("Content-Type", "text/event-stream")
		return NewSSEWriter(w, flusher), nil
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(DataStreamHeader, "v1")
	return NewDataStreamWriter(w, flusher), nil
}

// DataStreamWriter writes `{code}:{json}\n` lines.
type DataStreamWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewDataStreamWriter creates a data stream encoder. flusher may be nil.
func NewDataStreamWriter(w io.Writer, flusher http.Flusher) *DataStreamWriter {
	return &DataStreamWriter{w: w, flusher: flusher}
}

func (d *DataStreamWriter) part(code byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w part %c: %w", ErrEncode, code, err)
	}
	if _, err := fmt.Fprintf(d.w, "%c:%s\n", code, data); err != nil {
		return err
	}
	if d.flusher != nil {
		d.flusher.Flush()
	}
	return nil
}

func (d *DataStreamWriter) StartStep(messageID string) error {
	return d.part(PartStartStep, model.StepStartEvent{MessageID: messageID})
}

func (d *DataStreamWriter) Text(delta string) error {
	return d.part(PartText, delta)
}

func (d *DataStreamWriter) ToolCall(ev model.ToolCallEvent) error {
	return d.part(PartToolCall, ev)
}

func (d *DataStreamWriter) ToolResult(ev model.ToolResultEvent) error {
	return d.part(PartToolResult, ev)
}

func (d *DataStreamWriter) Error(message string) error {
	return d.part(PartError, message)
}

func (d *DataStreamWriter) FinishStep(ev model.FinishEvent) error {
	if ev.IsContinued == nil {
		continued := false
		ev.IsContinued = &continued
	}
	return d.part(PartFinishStep, ev)
}

func (d *DataStreamWriter) Finish(ev model.FinishEvent) error {
	ev.IsContinued = nil
	return d.part(PartFinish, ev)
}

// SSEWriter writes `event:`/`data:` frames.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter creates an SSE encoder. flusher may be nil.
func NewSSEWriter(w io.Writer, flusher http.Flusher) *SSEWriter {
	return &SSEWriter{w: w, flusher: flusher}
}

func (s *SSEWriter) send(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w %s event: %w", ErrEncode, event, err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *SSEWriter) StartStep(messageID string) error {
	return s.send(EventStartStep, model.StepStartEvent{MessageID: messageID})
}

func (s *SSEWriter) Text(delta string) error {
	return s.send(EventText, map[string]string{"delta": delta})
}

func (s *SSEWriter) ToolCall(ev model.ToolCallEvent) error {
	return s.send(EventToolCall, ev)
}

func (s *SSEWriter) ToolResult(ev model.ToolResultEvent) error {
	return s.send(EventToolResult, ev)
}

func (s *SSEWriter) Error(message string) error {
	return s.send(EventError, map[string]string{"message": message})
}

func (s *SSEWriter) FinishStep(ev model.FinishEvent) error {
	return s.send(EventFinishStep, ev)
}

func (s *SSEWriter) Finish(ev model.FinishEvent) error {
	ev.IsContinued = nil
	return s.send(EventFinish, ev)
}
