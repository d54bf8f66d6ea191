// Package runnable implements the five composable execution units the
// engine drives (spec §4.4–§4.5): Agent, Sequence, Parallel, Loop, and
// Step. Each wraps its work in the invocation boundary (package
// invocation) and exposes itself to package orchestration as a
// ChildRunner, without orchestration ever importing this package back.
package runnable

import (
	"context"

	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/fingerprint"
	"github.com/continuum-run/agentcore/pkg/invocation"
	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/continuum-run/agentcore/pkg/orchestration"
)

// RunContext is everything a runnable needs to execute one invocation: the
// session it appends to, the push callback wired to the shared event
// channel, the orchestration handles for handoff, scoped state access, and
// (if this is a resume) the resume position to re-enter at.
type RunContext struct {
	Session       *model.Session
	Push          func(model.Event)
	Orchestration *orchestration.Handles
	State         *eventlog.BoundState
	TempState     *model.TempState

	InvocationID       string
	ParentInvocationID string
	AgentName          string
	HandoffOrigin      model.HandoffOrigin

	// Fingerprint and Version are set only when this RunContext belongs to
	// the root invocation of a run.
	Fingerprint string
	Version     string

	Resume *eventlog.ResumeContext

	MaxSteps int
}

// childResume returns the ResumeContext for the nth declared child of this
// invocation, if rc itself is resuming and that child was the one
// suspended.
func (rc *RunContext) childResume(index int) *eventlog.ResumeContext {
	if rc.Resume == nil || index >= len(rc.Resume.Children) {
		return nil
	}
	return &rc.Resume.Children[index]
}

// RunOutcome is a Runnable's result: the invocation read-out recorded on
// its closing envelope event, plus any domain output value (an agent's
// parsed structured output, a step's declared result, Call's return
// value...).
type RunOutcome struct {
	ReadOut invocation.ReadOut
	Output  any
}

// Runnable is the sum type spec §1 calls out: Agent, Sequence, Parallel,
// Loop, Step each implement it as a distinct Go type rather than through
// inheritance.
type Runnable interface {
	fingerprint.Node
	Name() string
	Run(ctx context.Context, rc *RunContext) (RunOutcome, error)
}

// execFunc is the inner body of a runnable, run inside the invocation
// boundary: it pushes events as it goes and reports its outcome.
type execFunc func(ctx context.Context, push func(model.Event)) (invocation.ReadOut, any, error)

// runWithBoundary wraps fn in the invocation envelope described by rc and
// kind (spec §4.3), translating the three-value execFunc shape into the
// two-value invocation.ChildFunc shape invocation.Run expects.
func runWithBoundary(ctx context.Context, rc *RunContext, kind model.InvocationKind, fn execFunc) (RunOutcome, error) {
	var output any
	readOut, err := invocation.Run(ctx, rc.Session, invocation.Options{
		InvocationID:       rc.InvocationID,
		ParentInvocationID: rc.ParentInvocationID,
		AgentName:          rc.AgentName,
		Kind:               kind,
		HandoffOrigin:      rc.HandoffOrigin,
		Fingerprint:        rc.Fingerprint,
		Version:            rc.Version,
		Resume:             rc.Resume,
	}, rc.Push, func(ctx context.Context, push func(model.Event)) (invocation.ReadOut, error) {
		readOut, out, err := fn(ctx, push)
		output = out
		return readOut, err
	})
	return RunOutcome{ReadOut: readOut, Output: output}, err
}

// ChildRunnerAdapter makes any Runnable satisfy orchestration.ChildRunner,
// translating an orchestration.ChildRunRequest into the RunContext a
// Runnable expects. Registered in orchestration.Registry per agent name.
type ChildRunnerAdapter struct {
	Runnable Runnable
	State    func(session *model.Session, invocationID string) *eventlog.BoundState
	Orch     func(session *model.Session, invocationID string, temp *model.TempState, push func(model.Event)) *orchestration.Handles
}

func (a *ChildRunnerAdapter) Run(ctx context.Context, req orchestration.ChildRunRequest) (orchestration.ChildRunResult, error) {
	temp := req.Session.TempStateFor(req.InvocationID)
	if req.TempOverrides != nil {
		for k, v := range req.TempOverrides {
			temp.Set(k, v)
		}
	}

	rc := &RunContext{
		Session:            req.Session,
		Push:               req.Push,
		InvocationID:       req.InvocationID,
		ParentInvocationID: req.ParentInvocationID,
		AgentName:          a.Runnable.Name(),
		HandoffOrigin:      req.HandoffOrigin,
		TempState:          temp,
		MaxSteps:           16,
	}
	if a.State != nil {
		rc.State = a.State(req.Session, req.InvocationID)
	}
	if a.Orch != nil {
		rc.Orchestration = a.Orch(req.Session, req.InvocationID, temp, req.Push)
	}

	outcome, err := a.Runnable.Run(ctx, rc)
	req.Session.ClearTempState(req.InvocationID)
	if err != nil {
		return orchestration.ChildRunResult{}, err
	}
	return orchestration.ChildRunResult{Output: outcome.Output, ReadOut: outcome.ReadOut}, nil
}

var _ orchestration.ChildRunner = (*ChildRunnerAdapter)(nil)
