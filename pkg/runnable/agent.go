package runnable

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/continuum-run/agentcore/pkg/agcerr"
	"github.com/continuum-run/agentcore/pkg/fingerprint"
	"github.com/continuum-run/agentcore/pkg/invocation"
	"github.com/continuum-run/agentcore/pkg/llmadapter"
	"github.com/continuum-run/agentcore/pkg/logging"
	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/continuum-run/agentcore/pkg/tools"
	"go.uber.org/zap"
)

// HandoffResult is returned from a tool's Execute when the tool is a
// "handoff producer": instead of a plain value, it hands the driver a
// child Runnable to execute inline before the agent loop continues (spec
// §4.4 point 3).
type HandoffResult struct {
	Runnable Runnable
	Message  string
}

// TransferSignal is returned from a tool's Execute when the tool is a
// "transfer signal": the agent loop ends immediately and control bubbles
// up to the caller as a request to hand the conversation to a different
// top-level agent (spec §4.4 point 3).
type TransferSignal struct {
	AgentName string
}

// ContextRenderer augments the base RenderContext built from the session
// fold before it is handed to the model adapter — the Go shape of "the
// agent's declared context renderers" (spec §4.4 point 1).
type ContextRenderer func(ctx context.Context, rc *RunContext, base llmadapter.RenderContext) (llmadapter.RenderContext, error)

// ErrorAction is what an ErrorHandler decides to do with a non-retryable
// model error (spec §4.4 failure semantics).
type ErrorAction string

const (
	ErrorActionSkip    ErrorAction = "skip"
	ErrorActionRetry   ErrorAction = "retry"
	ErrorActionReplace ErrorAction = "replace"
	ErrorActionFail    ErrorAction = "fail"
)

// ErrorHandlerResult is what an ErrorHandler returns.
type ErrorHandlerResult struct {
	Action      ErrorAction
	Replacement *llmadapter.ModelStepResult
}

// ErrorHandler inspects a model-step error and decides how the driver
// should proceed. Handlers run in registration order; the first one that
// returns skip, retry, fail, or replace with a non-nil Replacement decides.
// A replace without a Replacement passes the error to the next handler.
type ErrorHandler func(ctx context.Context, err error) ErrorHandlerResult

// Agent is the reasoning-loop driver (spec §4.4): it iterates model steps,
// dispatches tool calls, and terminates on a terminal model step, a tool
// yield, or maxSteps.
type Agent struct {
	name        string
	description string
	instruction string

	adapter     llmadapter.Adapter
	modelConfig llmadapter.ModelConfig

	toolOrder []string
	toolSet   map[string]tools.Tool

	providerTools []any
	toolChoice    llmadapter.ToolChoice

	outputSchema any
	outputKey    string

	maxSteps int

	renderers []ContextRenderer
	handlers  []ErrorHandler

	log *zap.Logger
}

// Option configures an Agent at construction time.
type Option func(*Agent)

// NewAgent builds an Agent with the teacher's default maxToolCalls-style
// ceiling (here maxSteps, default 16 per spec §4.4).
func NewAgent(name, description string, adapter llmadapter.Adapter, opts ...Option) *Agent {
	a := &Agent{
		name:        name,
		description: description,
		adapter:     adapter,
		toolSet:     make(map[string]tools.Tool),
		toolChoice:  llmadapter.ToolChoiceAuto,
		maxSteps:    16,
		log:         logging.Named("runnable.agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func WithInstruction(instruction string) Option {
	return func(a *Agent) { a.instruction = instruction }
}

func WithTool(t tools.Tool) Option {
	return func(a *Agent) {
		if _, exists := a.toolSet[t.Name()]; !exists {
			a.toolOrder = append(a.toolOrder, t.Name())
		}
		a.toolSet[t.Name()] = t
	}
}

func WithProviderTools(providerTools ...any) Option {
	return func(a *Agent) { a.providerTools = append(a.providerTools, providerTools...) }
}

func WithToolChoice(tc llmadapter.ToolChoice) Option {
	return func(a *Agent) { a.toolChoice = tc }
}

func WithOutputSchema(schema any, key string) Option {
	return func(a *Agent) { a.outputSchema = schema; a.outputKey = key }
}

func WithMaxSteps(n int) Option {
	return func(a *Agent) { a.maxSteps = n }
}

func WithModelConfig(cfg llmadapter.ModelConfig) Option {
	return func(a *Agent) { a.modelConfig = cfg }
}

func WithContextRenderer(r ContextRenderer) Option {
	return func(a *Agent) { a.renderers = append(a.renderers, r) }
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(a *Agent) { a.handlers = append(a.handlers, h) }
}

func (a *Agent) Name() string { return a.name }

// --- fingerprint.Node ---

func (a *Agent) FingerprintKind() string { return "agent" }
func (a *Agent) FingerprintName() string { return a.name }

func (a *Agent) FingerprintTools() []string {
	names := append([]string(nil), a.toolOrder...)
	sort.Strings(names)
	return names
}

func (a *Agent) FingerprintYields() bool {
	for _, name := range a.toolOrder {
		if a.toolSet[name].YieldSchema() != nil {
			return true
		}
	}
	return false
}

func (a *Agent) FingerprintChildren() []fingerprint.Node { return nil }

var _ Runnable = (*Agent)(nil)

// Run executes the agent's reasoning loop inside its invocation boundary.
func (a *Agent) Run(ctx context.Context, rc *RunContext) (RunOutcome, error) {
	maxSteps := a.maxSteps
	if rc.MaxSteps > 0 {
		maxSteps = rc.MaxSteps
	}
	return runWithBoundary(ctx, rc, model.KindAgent, func(ctx context.Context, push func(model.Event)) (invocation.ReadOut, any, error) {
		return a.execute(ctx, rc, push, maxSteps)
	})
}

func (a *Agent) execute(ctx context.Context, rc *RunContext, push func(model.Event), maxSteps int) (invocation.ReadOut, any, error) {
	yieldIndex := 0
	if rc.Resume != nil {
		yieldIndex = rc.Resume.YieldIndex + 1
	}

	iterations := 0
	for iterations < maxSteps {
		select {
		case <-ctx.Done():
			return invocation.ReadOut{Iterations: iterations, EndReason: model.EndAborted, Error: ctx.Err().Error()}, nil, nil
		default:
		}

		iterations++

		renderCtx, err := a.buildRenderContext(ctx, rc)
		if err != nil {
			return invocation.ReadOut{}, nil, err
		}

		result, err := a.stepWithErrorHandling(ctx, renderCtx, push)
		if err != nil {
			return invocation.ReadOut{Iterations: iterations, EndReason: model.EndError, Error: err.Error()}, nil, err
		}

		for _, e := range result.StepEvents {
			e.InvocationID = rc.InvocationID
			e.AgentName = a.name
			rc.Session.Append(e)
			push(e)
		}

		if len(result.ToolCalls) == 0 {
			if result.Terminal {
				output, err := a.finalizeOutput(rc)
				if err != nil {
					return invocation.ReadOut{Iterations: iterations, EndReason: model.EndError, Error: err.Error()}, nil, err
				}
				return invocation.ReadOut{Iterations: iterations, EndReason: model.EndCompleted}, output, nil
			}
			continue
		}

		dispatch, err := a.dispatchToolCalls(ctx, rc, push, result.ToolCalls, yieldIndex)
		if err != nil {
			return invocation.ReadOut{Iterations: iterations, EndReason: model.EndError, Error: err.Error()}, nil, err
		}

		if dispatch.transfer != "" {
			return invocation.ReadOut{Iterations: iterations, EndReason: model.EndCompleted, HandoffTarget: dispatch.transfer}, nil, nil
		}
		if len(dispatch.pendingCallIDs) > 0 {
			return invocation.ReadOut{
				Iterations:     iterations,
				IsYielded:      true,
				YieldIndex:     yieldIndex,
				PendingCallIDs: dispatch.pendingCallIDs,
				AwaitingInput:  true,
			}, nil, nil
		}

		if result.Terminal {
			output, err := a.finalizeOutput(rc)
			if err != nil {
				return invocation.ReadOut{Iterations: iterations, EndReason: model.EndError, Error: err.Error()}, nil, err
			}
			return invocation.ReadOut{Iterations: iterations, EndReason: model.EndCompleted}, output, nil
		}
	}

	return invocation.ReadOut{Iterations: iterations, EndReason: model.EndMaxSteps}, nil, nil
}

func (a *Agent) stepWithErrorHandling(ctx context.Context, rc llmadapter.RenderContext, push func(model.Event)) (llmadapter.ModelStepResult, error) {
	onStream := a.deltaForwarder(rc, push)
	result, err := a.adapter.Step(ctx, rc, a.modelConfig, onStream)
	if err == nil {
		return result, nil
	}

	for _, h := range a.handlers {
		res := h(ctx, err)
		switch res.Action {
		case ErrorActionSkip:
			return llmadapter.ModelStepResult{Terminal: true}, nil
		case ErrorActionReplace:
			if res.Replacement != nil {
				return *res.Replacement, nil
			}
		case ErrorActionRetry:
			return a.adapter.Step(ctx, rc, a.modelConfig, onStream)
		case ErrorActionFail:
			return llmadapter.ModelStepResult{}, &agcerr.ModelFatalError{Message: "model step failed", Cause: err}
		}
	}
	return llmadapter.ModelStepResult{}, &agcerr.ModelFatalError{Message: "model step failed", Cause: err}
}

// deltaForwarder turns a model step's incremental output into pushed stream
// items, so a Runner's consumer sees thought/assistant text as it streams in
// rather than only the accumulated stepEvents once the step finishes. Deltas
// are pushed, never appended to the session: the session only ever records
// the final, accumulated event.
func (a *Agent) deltaForwarder(rc llmadapter.RenderContext, push func(model.Event)) func(llmadapter.StreamEvent) {
	return func(delta llmadapter.StreamEvent) {
		push(model.Event{
			ID:           model.NewEventID(),
			Type:         streamDeltaEventType(delta.Kind),
			Text:         delta.Text,
			InvocationID: rc.InvocationID,
			AgentName:    rc.AgentName,
		})
	}
}

func streamDeltaEventType(kind llmadapter.StreamEventKind) model.EventType {
	switch kind {
	case llmadapter.StreamThoughtDelta:
		return model.EventThought
	case llmadapter.StreamToolCallDelta:
		return model.EventToolCall
	default:
		return model.EventAssistant
	}
}

func (a *Agent) buildRenderContext(ctx context.Context, rc *RunContext) (llmadapter.RenderContext, error) {
	specs := make([]llmadapter.FunctionToolSpec, 0, len(a.toolOrder))
	for _, name := range a.toolOrder {
		t := a.toolSet[name]
		specs = append(specs, llmadapter.FunctionToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.YieldSchema(),
			Yields:      t.YieldSchema() != nil,
		})
	}

	base := llmadapter.RenderContext{
		Events:        rc.Session.Events(),
		FunctionTools: specs,
		ProviderTools: a.providerTools,
		ToolChoice:    a.toolChoice,
		OutputSchema:  a.outputSchema,
		Agent:         a.name,
		InvocationID:  rc.InvocationID,
		AgentName:     a.name,
	}
	if rc.State != nil {
		base.State = rc.State.ToMap()
	}

	for _, renderer := range a.renderers {
		var err error
		base, err = renderer(ctx, rc, base)
		if err != nil {
			return base, fmt.Errorf("context renderer: %w", err)
		}
	}
	return base, nil
}

type dispatchOutcome struct {
	pendingCallIDs []string
	transfer       string
}

func (a *Agent) dispatchToolCalls(ctx context.Context, rc *RunContext, push func(model.Event), calls []llmadapter.ToolCall, yieldIndex int) (dispatchOutcome, error) {
	events := rc.Session.Events()
	var outcome dispatchOutcome

	for _, call := range calls {
		t, known := a.toolSet[call.Name]
		if !known {
			// provider tool: executed by the model provider itself, nothing
			// for the engine to dispatch.
			continue
		}

		toolCtx := &tools.Context{
			Session:      rc.Session,
			InvocationID: rc.InvocationID,
			CallID:       call.CallID,
			State:        rc.State,
			TempState:    rc.TempState,
			Handoff:      rc.Orchestration,
		}

		if t.YieldSchema() != nil {
			if resolved, input := resolvedYield(events, call.CallID); resolved {
				resolvedArgs := mergeResolvedInput(call.Args, input)
				result, err := a.executeTool(ctx, t, resolvedArgs, toolCtx)
				a.emitToolResult(rc, push, call.CallID, result, err)
				if ts, ok := asTransfer(result); ok {
					outcome.transfer = ts.AgentName
					return outcome, nil
				}
				if hr, ok := asHandoff(result); ok {
					if err := a.runHandoff(ctx, rc, push, hr); err != nil {
						return outcome, err
					}
				}
				continue
			}

			prepared, err := t.Prepare(ctx, call.Args, toolCtx)
			if err != nil {
				return outcome, fmt.Errorf("prepare %s: %w", call.Name, err)
			}
			ev := model.Event{
				ID:           model.NewEventID(),
				Type:         model.EventToolYield,
				InvocationID: rc.InvocationID,
				CallID:       call.CallID,
				PreparedArgs: prepared,
			}
			rc.Session.Append(ev)
			push(ev)
			outcome.pendingCallIDs = append(outcome.pendingCallIDs, call.CallID)
			continue
		}

		result, err := a.executeTool(ctx, t, call.Args, toolCtx)
		a.emitToolResult(rc, push, call.CallID, result, err)

		if ts, ok := asTransfer(result); ok {
			outcome.transfer = ts.AgentName
			return outcome, nil
		}
		if hr, ok := asHandoff(result); ok {
			if err := a.runHandoff(ctx, rc, push, hr); err != nil {
				return outcome, err
			}
		}
	}

	return outcome, nil
}

func (a *Agent) executeTool(ctx context.Context, t tools.Tool, args map[string]any, tc *tools.Context) (any, error) {
	result, err := tools.ExecuteWithPolicy(ctx, t.RetryPolicy(), func(ctx context.Context) (any, error) {
		return tools.RunWithTimeout(ctx, t.Timeout(), func(ctx context.Context) (any, error) {
			return t.Execute(ctx, args, tc)
		})
	})
	finalizeErr := t.Finalize(ctx, tc, result, err)
	if err != nil {
		return nil, &agcerr.ToolExecutionError{ToolName: t.Name(), CallID: tc.CallID, Cause: err}
	}
	if finalizeErr != nil {
		a.log.Warn("tool finalize failed", zap.String("tool", t.Name()), zap.Error(finalizeErr))
	}
	return result, nil
}

func (a *Agent) emitToolResult(rc *RunContext, push func(model.Event), callID string, result any, err error) {
	ev := model.Event{
		ID:           model.NewEventID(),
		Type:         model.EventToolResult,
		InvocationID: rc.InvocationID,
		CallID:       callID,
	}
	if err != nil {
		ev.ToolError = err.Error()
	} else if _, ok := asHandoff(result); ok {
		ev.Result = "handoff"
	} else if ts, ok := asTransfer(result); ok {
		ev.Result = map[string]any{"transfer": ts.AgentName}
	} else {
		ev.Result = result
	}
	rc.Session.Append(ev)
	push(ev)
}

func (a *Agent) runHandoff(ctx context.Context, rc *RunContext, push func(model.Event), hr HandoffResult) error {
	childID := model.NewInvocationID()
	if hr.Message != "" {
		rc.Session.Append(model.Event{ID: model.NewEventID(), Type: model.EventUser, Text: hr.Message, InvocationID: childID})
	}
	childRC := &RunContext{
		Session:            rc.Session,
		Push:               push,
		Orchestration:      rc.Orchestration,
		State:              rc.State,
		TempState:          rc.TempState.Fork(nil),
		InvocationID:       childID,
		ParentInvocationID: rc.InvocationID,
		AgentName:          hr.Runnable.Name(),
		HandoffOrigin:      model.HandoffTransfer,
		MaxSteps:           rc.MaxSteps,
	}
	_, err := hr.Runnable.Run(ctx, childRC)
	return err
}

func (a *Agent) finalizeOutput(rc *RunContext) (any, error) {
	if a.outputSchema == nil {
		return lastAssistantText(rc.Session.Events()), nil
	}

	text := lastAssistantText(rc.Session.Events())
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, &agcerr.OutputParseError{Message: "could not parse assistant output against declared schema", Cause: err}
	}
	if a.outputKey != "" && rc.State != nil {
		rc.State.Set(a.outputKey, parsed)
	}
	return parsed, nil
}

func lastAssistantText(events []model.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == model.EventAssistant {
			return events[i].Text
		}
	}
	return ""
}

func resolvedYield(events []model.Event, callID string) (bool, any) {
	for _, e := range events {
		if e.Type == model.EventToolInput && e.CallID == callID {
			return true, e.Input
		}
	}
	return false, nil
}

// mergeResolvedInput folds the external tool_input value into the
// original call args under the "input" key, leaving the originally
// requested args intact for tools that need both.
func mergeResolvedInput(args map[string]any, input any) map[string]any {
	merged := make(map[string]any, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	merged["input"] = input
	return merged
}

func asHandoff(v any) (HandoffResult, bool) {
	hr, ok := v.(HandoffResult)
	return hr, ok
}

func asTransfer(v any) (TransferSignal, bool) {
	ts, ok := v.(TransferSignal)
	return ts, ok
}
