package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/stream"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
	"github.com/capitalize-ai/chat-orchestrator/pkg/tracing"
)

// Stream runs the generate/call-tools loop, writing every event to w as it
// happens. On failure one classified error message is written and the
// classified error returned. A cancelled request stops silently and returns
// the context error.
func (r *Run) Stream(ctx context.Context, w stream.Writer) error {
	start := r.o.now()

	ctx, span := tracing.StartSpan(ctx, "orchestrator.run",
		attribute.String("provider", string(r.req.Provider)),
		attribute.String("model", r.req.Model),
		attribute.String("correlation_id", r.req.CorrelationID),
	)
	defer span.End()
	defer r.report(ctx, start)

	if err := r.transition(ctx, eventStart); err != nil {
		return r.fail(ctx, w, err)
	}

	for {
		r.steps++
		resp, err := r.generate(ctx, w)
		if err != nil {
			return r.fail(ctx, w, err)
		}
		stepUsage := resp.Usage()
		r.usage.Add(stepUsage)

		if len(resp.ToolCalls) == 0 {
			r.finish = resp.StopReason
			if r.finish == "" {
				r.finish = model.FinishStop
			}
			if err := w.FinishStep(finishEvent(r.finish, stepUsage, false)); err != nil {
				return r.fail(ctx, w, clientGone(err))
			}
			return r.complete(ctx, w)
		}

		if err := r.transition(ctx, eventCallTools); err != nil {
			return r.fail(ctx, w, err)
		}
		r.messages = append(r.messages, llm.ChatMessage{
			Role:      model.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: historyToolCalls(resp.ToolCalls),
		})

		results, err := r.executeTools(ctx, w, resp.ToolCalls)
		if err != nil {
			return r.fail(ctx, w, err)
		}
		if err := r.transition(ctx, eventAppendResults); err != nil {
			return r.fail(ctx, w, err)
		}
		r.messages = append(r.messages, results...)

		continued := r.steps < r.maxSteps
		if err := w.FinishStep(finishEvent(model.FinishToolCalls, stepUsage, continued)); err != nil {
			return r.fail(ctx, w, clientGone(err))
		}

		if !continued {
			r.finish = model.FinishToolCalls
			return r.complete(ctx, w)
		}
		if err := r.transition(ctx, eventResume); err != nil {
			return r.fail(ctx, w, err)
		}
	}
}

func finishEvent(reason model.FinishReason, usage model.Usage, continued bool) model.FinishEvent {
	return model.FinishEvent{FinishReason: reason, Usage: usage, IsContinued: &continued}
}

// generate performs one provider call, forwarding text deltas immediately.
func (r *Run) generate(ctx context.Context, w stream.Writer) (*llm.CompletionResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.step", attribute.Int("step", r.steps))
	defer span.End()

	if err := w.StartStep(r.o.newID()); err != nil {
		return nil, clientGone(err)
	}

	req := &llm.CompletionRequest{
		Model:       r.req.Model,
		System:      r.req.Context.SystemPrompt,
		Messages:    r.messages,
		MaxTokens:   r.req.Settings.MaxTokens,
		Temperature: llm.Float(r.req.Settings.Temperature),
		TopP:        r.req.Settings.TopP,
		Tools:       r.req.Tools.Specs(),
	}

	started := time.Now()
	resp, err := r.req.Client.CompleteStream(ctx, req, func(token string, _ int) error {
		return clientGone(w.Text(token))
	})
	elapsed := time.Since(started).Seconds()

	if err != nil {
		metrics.RecordLLMStream(string(r.req.Provider), r.req.Model, "error", elapsed, 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider stream failed")
		return nil, err
	}

	metrics.RecordLLMStream(string(r.req.Provider), r.req.Model, "success", elapsed, resp.TokensIn, resp.TokensOut)
	span.SetAttributes(
		attribute.Int("tokens_in", resp.TokensIn),
		attribute.Int("tokens_out", resp.TokensOut),
		attribute.Int("tool_calls", len(resp.ToolCalls)),
	)
	return resp, nil
}

type toolOutcome struct {
	result any
	err    error
	event  *model.ToolExecutionEvent
}

// toolArguments returns args if it is valid JSON and an empty object
// otherwise. Malformed arguments still reach the registry unchanged so the
// call fails as an argument error.
func toolArguments(args json.RawMessage) json.RawMessage {
	if json.Valid(args) {
		return args
	}
	return json.RawMessage("{}")
}

// historyToolCalls copies calls with arguments every provider accepts when
// the history is sent back.
func historyToolCalls(calls []llm.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	for i, call := range calls {
		call.Arguments = toolArguments(call.Arguments)
		out[i] = call
	}
	return out
}

// executeTools announces the calls in model order, runs them concurrently
// and returns the tool result messages in the same order. Execution events
// are published once the results are on the stream.
func (r *Run) executeTools(ctx context.Context, w stream.Writer, calls []llm.ToolCall) ([]llm.ChatMessage, error) {
	for _, call := range calls {
		if err := w.ToolCall(model.ToolCallEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Args:       toolArguments(call.Arguments),
		}); err != nil {
			return nil, clientGone(err)
		}
	}

	outcomes := make([]toolOutcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = r.callTool(ctx, call)
		}()
	}
	wg.Wait()
	r.toolCalls += len(calls)
	defer r.publishToolEvents(ctx, outcomes)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]llm.ChatMessage, 0, len(calls))
	for i, call := range calls {
		out := outcomes[i]
		msg := llm.ChatMessage{
			Role:       model.RoleTool,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		}

		if out.err == nil {
			content, err := json.Marshal(out.result)
			if err != nil {
				out.err = chaterr.Wrap(chaterr.KindToolExecution, err, chaterr.MsgToolExecution)
			} else {
				msg.Content = string(content)
			}
		}

		if out.err != nil {
			public := chaterr.PublicMessage(out.err)
			if err := w.Error(public); err != nil {
				return nil, clientGone(err)
			}
			if err := w.ToolResult(model.ToolResultEvent{ToolCallID: call.ID, Result: model.ToolError{Error: public}}); err != nil {
				return nil, clientGone(err)
			}
			msg.Content = modelFacingError(out.err)
			msg.IsError = true
			results = append(results, msg)
			continue
		}

		if err := w.ToolResult(model.ToolResultEvent{ToolCallID: call.ID, Result: out.result}); err != nil {
			return nil, clientGone(err)
		}
		results = append(results, msg)
	}

	return results, nil
}

func (r *Run) callTool(ctx context.Context, call llm.ToolCall) toolOutcome {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.tool",
		attribute.String("tool", call.Name),
		attribute.String("tool_call_id", call.ID),
	)
	defer span.End()

	started := r.o.now()
	result, err := r.req.Tools.Call(ctx, call.Name, call.Arguments)
	elapsed := r.o.now().Sub(started)

	status := "success"
	ev := &model.ToolExecutionEvent{
		ID:            r.o.newID(),
		CorrelationID: r.req.CorrelationID,
		Provider:      string(r.req.Provider),
		Tool:          call.Name,
		ToolCallID:    call.ID,
		Step:          r.steps,
		DurationMs:    elapsed.Milliseconds(),
		CreatedAt:     started.UTC(),
	}
	if err != nil {
		status = "error"
		ev.ErrorKind = chaterr.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, ev.ErrorKind)
		r.log.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.String("tool_call_id", call.ID),
			zap.String("error_kind", ev.ErrorKind),
			zap.Error(err),
		)
	}
	ev.Status = status

	metrics.RecordToolExecution(call.Name, status, elapsed.Seconds())
	return toolOutcome{result: result, err: err, event: ev}
}

func (r *Run) publishToolEvents(ctx context.Context, outcomes []toolOutcome) {
	ctx = context.WithoutCancel(ctx)
	for _, out := range outcomes {
		if out.event == nil {
			continue
		}
		if err := r.o.publisher.PublishToolExecution(ctx, out.event); err != nil {
			metrics.EventPublishFailures.WithLabelValues("tool_execution").Inc()
			r.log.Warn("failed to publish tool execution event", zap.Error(err))
		}
	}
}

// modelFacingError is what the model sees for a failed call. Argument and
// lookup failures carry their cause so the model can correct the call.
func modelFacingError(err error) string {
	msg := chaterr.PublicMessage(err)

	switch chaterr.KindOf(err) {
	case chaterr.KindNoSuchTool, chaterr.KindInvalidToolArguments:
		var e *chaterr.Error
		if errors.As(err, &e) && e.Err != nil {
			msg = fmt.Sprintf("%s %s", msg, e.Err.Error())
		}
	}
	return msg
}

func (r *Run) complete(ctx context.Context, w stream.Writer) error {
	if err := r.transition(ctx, eventComplete); err != nil {
		return r.fail(ctx, w, err)
	}
	if err := w.Finish(model.FinishEvent{FinishReason: r.finish, Usage: r.usage}); err != nil {
		r.log.Debug("client gone before finish", zap.Error(err))
	}
	return nil
}

// fail moves the run to failed. Cancellation is silent; anything else
// writes exactly one classified message.
func (r *Run) fail(ctx context.Context, w stream.Writer, err error) error {
	_ = r.fsm.Event(context.WithoutCancel(ctx), eventFail)

	if isCancelled(ctx, err) {
		r.err = err
		r.log.Info("chat run cancelled by client", zap.Int("step", r.steps))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return context.Canceled
	}

	classified := classify(ctx, err)
	r.err = classified
	r.finish = model.FinishError

	r.log.Error("chat run failed",
		zap.Int("step", r.steps),
		zap.String("error_kind", classified.Kind.String()),
		zap.Error(err),
	)

	if werr := w.Error(classified.Message); werr != nil {
		r.log.Debug("client gone before error", zap.Error(werr))
	}
	return classified
}

// report records metrics and publishes the usage event for the run.
func (r *Run) report(ctx context.Context, start time.Time) {
	state := r.State()
	metrics.RecordRun(string(r.req.Provider), state, string(r.finish), r.steps)

	ev := &model.UsageEvent{
		ID:            r.o.newID(),
		CorrelationID: r.req.CorrelationID,
		UserID:        r.req.UserID,
		Provider:      string(r.req.Provider),
		Model:         r.req.Model,
		State:         state,
		FinishReason:  r.finish,
		Steps:         r.steps,
		ToolCalls:     r.toolCalls,
		Usage:         r.usage,
		DurationMs:    r.o.now().Sub(start).Milliseconds(),
		CreatedAt:     start.UTC(),
	}
	if r.err != nil {
		ev.ErrorKind = chaterr.KindOf(r.err).String()
		if isCancelled(ctx, r.err) {
			ev.ErrorKind = "cancelled"
		}
	}

	if err := r.o.publisher.PublishUsage(context.WithoutCancel(ctx), ev); err != nil {
		metrics.EventPublishFailures.WithLabelValues("usage").Inc()
		r.log.Warn("failed to publish usage event", zap.Error(err))
	}

	r.log.Info("chat run finished",
		zap.String("state", state),
		zap.String("finish_reason", string(r.finish)),
		zap.Int("steps", r.steps),
		zap.Int("tool_calls", r.toolCalls),
		zap.Int("prompt_tokens", r.usage.PromptTokens),
		zap.Int("completion_tokens", r.usage.CompletionTokens),
		zap.Int64("duration_ms", ev.DurationMs),
	)
}
