// Package orchestrator drives the generate/call-tools loop of a chat run and
// forwards its output to a stream.Writer as it is produced.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/conversation"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/stream"
	"github.com/capitalize-ai/chat-orchestrator/internal/tools"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
)

// DefaultMaxSteps bounds the number of provider calls in one run.
const DefaultMaxSteps = 10

// Run states.
const (
	StatePreparing          = "preparing"
	StateStreaming          = "streaming"
	StateToolCallPending    = "tool_call_pending"
	StateToolResultAppended = "tool_result_appended"
	StateCompleted          = "completed"
	StateFailed             = "failed"
)

// Run events.
const (
	eventStart         = "start"
	eventCallTools     = "call_tools"
	eventAppendResults = "append_results"
	eventResume        = "resume"
	eventComplete      = "complete"
	eventFail          = "fail"
)

// EventPublisher receives audit events for runs and tool calls.
type EventPublisher interface {
	PublishUsage(ctx context.Context, ev *model.UsageEvent) error
	PublishToolExecution(ctx context.Context, ev *model.ToolExecutionEvent) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishUsage(context.Context, *model.UsageEvent) error { return nil }

func (NoopPublisher) PublishToolExecution(context.Context, *model.ToolExecutionEvent) error {
	return nil
}

// Orchestrator holds the process-wide dependencies shared by all runs.
type Orchestrator struct {
	publisher EventPublisher
	logger    *logger.Logger
	maxSteps  int
	newID     func() string
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) { o.maxSteps = n }
}

// WithIDGenerator overrides the generator used for message and event ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithClock overrides time.Now.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// New creates an orchestrator. A nil publisher disables audit events.
func New(publisher EventPublisher, log *logger.Logger, opts ...Option) *Orchestrator {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if log == nil {
		log = logger.Global()
	}

	o := &Orchestrator{
		publisher: publisher,
		logger:    log,
		maxSteps:  DefaultMaxSteps,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request is everything a run needs. Tools may be nil for a provider without
// tool support.
type Request struct {
	CorrelationID string
	UserID        string
	Provider      llm.Provider
	Model         string
	Client        llm.Client
	Context       conversation.Context
	Settings      model.Settings
	Tools         *tools.Registry
}

// Run is a single chat run. It is not safe for concurrent use.
type Run struct {
	o        *Orchestrator
	req      Request
	fsm      *fsm.FSM
	log      *logger.Logger
	maxSteps int

	messages  []llm.ChatMessage
	usage     model.Usage
	steps     int
	toolCalls int
	finish    model.FinishReason
	err       error
}

func newStateMachine(log *logger.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StatePreparing,
		fsm.Events{
			{Name: eventStart, Src: []string{StatePreparing}, Dst: StateStreaming},
			{Name: eventCallTools, Src: []string{StateStreaming}, Dst: StateToolCallPending},
			{Name: eventAppendResults, Src: []string{StateToolCallPending}, Dst: StateToolResultAppended},
			{Name: eventResume, Src: []string{StateToolResultAppended}, Dst: StateStreaming},
			{Name: eventComplete, Src: []string{StateStreaming, StateToolResultAppended}, Dst: StateCompleted},
			{Name: eventFail, Src: []string{StatePreparing, StateStreaming, StateToolCallPending, StateToolResultAppended}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("run state changed", zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
}

// NewRun validates req and returns a run in the preparing state.
func (o *Orchestrator) NewRun(req Request) (*Run, error) {
	log := o.logger.WithRequest(req.CorrelationID, string(req.Provider), req.Model)

	r := &Run{
		o:        o,
		req:      req,
		fsm:      newStateMachine(log),
		log:      log,
		maxSteps: o.maxSteps,
	}

	if err := r.validate(); err != nil {
		r.err = err
		_ = r.fsm.Event(context.Background(), eventFail)
		metrics.RecordRun(string(req.Provider), StateFailed, "", 0)
		return nil, err
	}

	if r.req.Tools == nil {
		r.req.Tools = tools.Empty()
	}
	r.messages = llm.FromChatMessages(req.Context.Messages)
	return r, nil
}

func (r *Run) validate() error {
	switch {
	case r.req.Provider == "":
		return chaterr.New(chaterr.KindMissingFields, chaterr.MsgMissingFields)
	case r.req.Model == "":
		return chaterr.New(chaterr.KindMissingFields, chaterr.MsgMissingFields)
	case r.req.Client == nil:
		return chaterr.New(chaterr.KindMissingFields, chaterr.MsgMissingFields)
	case r.maxSteps < 1:
		return chaterr.New(chaterr.KindConfiguration, "Step budget must be positive")
	}
	return nil
}

// State returns the current run state.
func (r *Run) State() string {
	return r.fsm.Current()
}

// Usage returns the token usage summed over all steps so far.
func (r *Run) Usage() model.Usage {
	return r.usage
}

// Steps returns the number of provider calls made so far.
func (r *Run) Steps() int {
	return r.steps
}

func (r *Run) transition(ctx context.Context, event string) error {
	if err := r.fsm.Event(ctx, event); err != nil {
		return chaterr.Wrap(chaterr.KindUnknown, err, chaterr.MsgUnknown)
	}
	return nil
}

// clientGoneError marks a failed write to the response stream.
type clientGoneError struct {
	err error
}

func (e *clientGoneError) Error() string { return "write to client: " + e.err.Error() }

func (e *clientGoneError) Unwrap() error { return e.err }

// clientGone classifies a stream.Writer error. Encoding failures leave the
// stream intact and are reported like any other run failure.
func clientGone(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, stream.ErrEncode) {
		return chaterr.Wrap(chaterr.KindUnknown, err, chaterr.MsgUnknown)
	}
	return &clientGoneError{err: err}
}

// isCancelled reports whether err means the client went away.
func isCancelled(ctx context.Context, err error) bool {
	var gone *clientGoneError
	if errors.As(err, &gone) {
		return true
	}
	return errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled)
}

// classify turns a mid-stream failure into a client-safe error.
func classify(ctx context.Context, err error) *chaterr.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return chaterr.Wrap(chaterr.KindTimeout, err, chaterr.MsgTimeout)
	}
	var classified *chaterr.Error
	if errors.As(err, &classified) {
		return classified
	}
	return chaterr.Wrap(chaterr.KindUnknown, err, chaterr.MsgUnknown)
}
