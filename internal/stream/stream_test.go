package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

func writeRun(t *testing.T, w Writer) {
	t.Helper()
	require.NoError(t, w.StartStep("msg-1"))
	require.NoError(t, w.Text("The answer is "))
	require.NoError(t, w.ToolCall(model.ToolCallEvent{
		ToolCallID: "call_1",
		ToolName:   "calculator",
		Args:       json.RawMessage(`{"expr":"2+2"}`),
	}))
	require.NoError(t, w.ToolResult(model.ToolResultEvent{ToolCallID: "call_1", Result: 4.0}))
	require.NoError(t, w.Error("An error occurred during tool execution."))
	require.NoError(t, w.FinishStep(model.FinishEvent{
		FinishReason: model.FinishToolCalls,
		Usage:        model.Usage{PromptTokens: 10, CompletionTokens: 3},
	}))
	require.NoError(t, w.Finish(model.FinishEvent{
		FinishReason: model.FinishStop,
		Usage:        model.Usage{PromptTokens: 25, CompletionTokens: 9},
	}))
}

func TestDataStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writeRun(t, NewDataStreamWriter(&buf, nil))

	parts, err := ParseDataStream(&buf)
	require.NoError(t, err)

	codes := make([]byte, len(parts))
	for i, p := range parts {
		codes[i] = p.Code
	}
	assert.Equal(t, []byte{PartStartStep, PartText, PartToolCall, PartToolResult, PartError, PartFinishStep, PartFinish}, codes)

	var start model.StepStartEvent
	require.NoError(t, parts[0].Decode(&start))
	assert.Equal(t, "msg-1", start.MessageID)

	text, err := parts[1].Text()
	require.NoError(t, err)
	assert.Equal(t, "The answer is ", text)

	var call model.ToolCallEvent
	require.NoError(t, parts[2].Decode(&call))
	assert.Equal(t, "calculator", call.ToolName)
	assert.JSONEq(t, `{"expr":"2+2"}`, string(call.Args))

	assert.JSONEq(t, `{"toolCallId":"call_1","result":4}`, string(parts[3].Payload))

	msg, err := parts[4].Text()
	require.NoError(t, err)
	assert.Equal(t, "An error occurred during tool execution.", msg)

	assert.JSONEq(t, `{"finishReason":"tool-calls","usage":{"promptTokens":10,"completionTokens":3},"isContinued":false}`, string(parts[5].Payload))
	assert.JSONEq(t, `{"finishReason":"stop","usage":{"promptTokens":25,"completionTokens":9}}`, string(parts[6].Payload))
}

func TestDataStreamEscapesText(t *testing.T) {
	var buf bytes.Buffer
	w := NewDataStreamWriter(&buf, nil)
	require.NoError(t, w.Text("line one\nline \"two\""))

	assert.Equal(t, "0:\"line one\\nline \\\"two\\\"\"\n", buf.String())

	parts, err := ParseDataStream(&buf)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	text, err := parts[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline \"two\"", text)
}

func TestSSEFrames(t *testing.T) {
	var buf bytes.Buffer
	writeRun(t, NewSSEWriter(&buf, nil))

	frames := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 7)

	var events []string
	for _, f := range frames {
		lines := strings.SplitN(f, "\n", 2)
		require.Len(t, lines, 2)
		require.True(t, strings.HasPrefix(lines[1], "data: "))
		assert.True(t, json.Valid([]byte(strings.TrimPrefix(lines[1], "data: "))))
		events = append(events, strings.TrimPrefix(lines[0], "event: "))
	}

	assert.Equal(t, []string{
		EventStartStep, EventText, EventToolCall, EventToolResult, EventError, EventFinishStep, EventFinish,
	}, events)
	assert.Contains(t, frames[1], `{"delta":"The answer is "}`)
}

type countingFlusher struct {
	*httptest.ResponseRecorder
	flushes int
}

func (c *countingFlusher) Flush() {
	c.flushes++
	c.ResponseRecorder.Flush()
}

func TestEveryWriteFlushes(t *testing.T) {
	rec := &countingFlusher{ResponseRecorder: httptest.NewRecorder()}
	writeRun(t, NewDataStreamWriter(rec, rec))
	assert.Equal(t, 7, rec.flushes)
}

func TestNegotiate(t *testing.T) {
	t.Run("data stream by default", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)

		w, err := Negotiate(rec, req)
		require.NoError(t, err)
		assert.IsType(t, &DataStreamWriter{}, w)
		assert.Equal(t, "v1", rec.Header().Get(DataStreamHeader))
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	})

	t.Run("sse on request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req.Header.Set("Accept", "text/event-stream")

		w, err := Negotiate(rec, req)
		require.NoError(t, err)
		assert.IsType(t, &SSEWriter{}, w)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Empty(t, rec.Header().Get(DataStreamHeader))
	})

	t.Run("no flusher", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		_, err := Negotiate(struct{ http.ResponseWriter }{httptest.NewRecorder()}, req)
		assert.True(t, errors.Is(err, ErrStreamingUnsupported))
	})
}

func TestParseDataStreamRejectsMalformed(t *testing.T) {
	for _, in := range []string{"hello\n", "0:not json\n", "x\n"} {
		_, err := ParseDataStream(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestUnencodableValueIsNotAWriteFailure(t *testing.T) {
	bad := model.ToolCallEvent{ToolCallID: "c1", ToolName: "calculator", Args: json.RawMessage(`{"expr":"2+`)}

	var buf bytes.Buffer
	err := NewDataStreamWriter(&buf, nil).ToolCall(bad)
	assert.ErrorIs(t, err, ErrEncode)
	assert.Zero(t, buf.Len())

	buf.Reset()
	err = NewSSEWriter(&buf, nil).ToolCall(bad)
	assert.ErrorIs(t, err, ErrEncode)
	assert.Zero(t, buf.Len())

	err = NewDataStreamWriter(brokenWriter{}, nil).Text("hi")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEncode)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
