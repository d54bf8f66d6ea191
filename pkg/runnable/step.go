package runnable

import (
	"context"

	"github.com/continuum-run/agentcore/pkg/fingerprint"
	"github.com/continuum-run/agentcore/pkg/invocation"
	"github.com/continuum-run/agentcore/pkg/model"
)

// StepSignal discriminates the tagged-variant result a Step's Execute
// hook may return (spec §4.5).
type StepSignal string

const (
	StepSkip     StepSignal = "skip"
	StepFail     StepSignal = "fail"
	StepRespond  StepSignal = "respond"
	StepComplete StepSignal = "complete"
)

// StepResult is what a Step's Execute hook returns: exactly one of a
// plain signal, a child Runnable to run (handoff), or nil/zero (treated as
// StepComplete with no value).
type StepResult struct {
	Signal StepSignal

	// Text is the assistant text emitted for StepRespond.
	Text string

	// Key/Value are written into the bound invocation state for
	// StepComplete, if Key is non-empty.
	Key   string
	Value any

	// Err is the failure detail for StepFail.
	Err error

	// Child triggers a nested child run instead of any of the above (the
	// "or a Runnable (triggers a child run)" branch of the tagged result).
	Child Runnable
}

// StepFunc is a Step's inline execute(ctx) → StepResult body.
type StepFunc func(ctx context.Context, rc *RunContext) (StepResult, error)

// Step is the leaf runnable unit (spec §4.5).
type Step struct {
	name   string
	fn     StepFunc
	yields bool
}

// NewStep builds a Step around fn.
func NewStep(name string, fn StepFunc) *Step {
	return &Step{name: name, fn: fn}
}

// WithYields marks this step as one whose fingerprint reports Yields=true.
// The flag affects only the fingerprint: StepResult has no yield variant,
// so a Step suspends only when its Child does.
func (s *Step) WithYields() *Step {
	s.yields = true
	return s
}

func (s *Step) Name() string { return s.name }

func (s *Step) FingerprintKind() string       { return "step" }
func (s *Step) FingerprintName() string       { return s.name }
func (s *Step) FingerprintTools() []string    { return nil }
func (s *Step) FingerprintYields() bool       { return s.yields }
func (s *Step) FingerprintChildren() []fingerprint.Node { return nil }

var _ Runnable = (*Step)(nil)

func (s *Step) Run(ctx context.Context, rc *RunContext) (RunOutcome, error) {
	return runWithBoundary(ctx, rc, model.KindStep, func(ctx context.Context, push func(model.Event)) (invocation.ReadOut, any, error) {
		return s.execute(ctx, rc, push)
	})
}

func (s *Step) execute(ctx context.Context, rc *RunContext, push func(model.Event)) (invocation.ReadOut, any, error) {
	result, err := s.fn(ctx, rc)
	if err != nil {
		return invocation.ReadOut{EndReason: model.EndError, Error: err.Error()}, nil, err
	}

	switch result.Signal {
	case StepFail:
		msg := "step failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		return invocation.ReadOut{EndReason: model.EndError, Error: msg}, nil, nil

	case StepSkip:
		return invocation.ReadOut{EndReason: model.EndCompleted}, nil, nil

	case StepRespond:
		ev := model.Event{
			ID:           model.NewEventID(),
			Type:         model.EventAssistant,
			Text:         result.Text,
			InvocationID: rc.InvocationID,
			AgentName:    s.name,
		}
		rc.Session.Append(ev)
		push(ev)
		return invocation.ReadOut{EndReason: model.EndCompleted}, result.Text, nil
	}

	if result.Child != nil {
		childID := model.NewInvocationID()
		childRC := &RunContext{
			Session:            rc.Session,
			Push:               push,
			Orchestration:      rc.Orchestration,
			State:              rc.State,
			TempState:          rc.TempState,
			InvocationID:       childID,
			ParentInvocationID: rc.InvocationID,
			AgentName:          result.Child.Name(),
			MaxSteps:           rc.MaxSteps,
		}
		outcome, err := result.Child.Run(ctx, childRC)
		if err != nil {
			return invocation.ReadOut{EndReason: model.EndError, Error: err.Error()}, nil, err
		}
		return outcome.ReadOut, outcome.Output, nil
	}

	// StepComplete (including the zero value, treated as "completed, no
	// value" per spec §4.5).
	if result.Key != "" && rc.State != nil {
		rc.State.Set(result.Key, result.Value)
	}
	return invocation.ReadOut{EndReason: model.EndCompleted}, result.Value, nil
}
