package runnable

import (
	"context"

	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/fingerprint"
	"github.com/continuum-run/agentcore/pkg/invocation"
	"github.com/continuum-run/agentcore/pkg/model"
)

// WhilePredicate decides whether another iteration of a Loop's child
// should run, given the iteration count completed so far.
type WhilePredicate func(rc *RunContext, iteration int) bool

// Loop re-runs a single child until While returns false, MaxIterations is
// reached, the child yields, or abort is signaled (spec §4.5).
type Loop struct {
	name          string
	child         Runnable
	while         WhilePredicate
	maxIterations int
	yields        bool // between-iteration invocation_yield{awaitingInput:true}
}

// NewLoop builds a Loop over a single child.
func NewLoop(name string, child Runnable, while WhilePredicate, maxIterations int) *Loop {
	return &Loop{name: name, child: child, while: while, maxIterations: maxIterations}
}

// WithBetweenIterationYield marks the loop as one that may suspend between
// iterations awaiting external input.
func (l *Loop) WithBetweenIterationYield() *Loop {
	l.yields = true
	return l
}

func (l *Loop) Name() string { return l.name }

func (l *Loop) FingerprintKind() string    { return "loop" }
func (l *Loop) FingerprintName() string    { return l.name }
func (l *Loop) FingerprintTools() []string { return nil }
func (l *Loop) FingerprintYields() bool    { return l.yields || l.child.FingerprintYields() }

func (l *Loop) FingerprintChildren() []fingerprint.Node {
	return []fingerprint.Node{l.child}
}

var _ Runnable = (*Loop)(nil)

func (l *Loop) Run(ctx context.Context, rc *RunContext) (RunOutcome, error) {
	return runWithBoundary(ctx, rc, model.KindLoop, func(ctx context.Context, push func(model.Event)) (invocation.ReadOut, any, error) {
		return l.execute(ctx, rc, push)
	})
}

func (l *Loop) execute(ctx context.Context, rc *RunContext, push func(model.Event)) (invocation.ReadOut, any, error) {
	totalIterations := 0
	var lastOutput any

	var resumeChildID string
	var resumeChild *eventlog.ResumeContext
	startIteration := 0
	if rc.Resume != nil {
		if len(rc.Resume.Children) > 0 {
			resumeChildID = rc.Resume.Children[0].InvocationID
			resumeChild = &rc.Resume.Children[0]
		} else {
			// The loop itself was the suspended node: a between-iteration
			// yield, not a yielded child. Resume at the next iteration.
			startIteration = rc.Resume.YieldIndex + 1
		}
	}

	for iteration := startIteration; l.maxIterations <= 0 || iteration < l.maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return invocation.ReadOut{Iterations: totalIterations, EndReason: model.EndAborted, Error: ctx.Err().Error()}, lastOutput, nil
		default:
		}

		if l.while != nil && !l.while(rc, iteration) {
			break
		}

		childID := model.NewInvocationID()
		var resume *eventlog.ResumeContext
		if iteration == startIteration && resumeChildID != "" {
			childID = resumeChildID
			resume = resumeChild
		}

		childRC := &RunContext{
			Session:            rc.Session,
			Push:               push,
			Orchestration:      rc.Orchestration,
			State:              rc.State,
			TempState:          rc.TempState,
			InvocationID:       childID,
			ParentInvocationID: rc.InvocationID,
			AgentName:          l.child.Name(),
			MaxSteps:           rc.MaxSteps,
			Resume:             resume,
		}

		outcome, err := l.child.Run(ctx, childRC)
		if err != nil {
			return invocation.ReadOut{Iterations: totalIterations, EndReason: model.EndError, Error: err.Error()}, nil, err
		}
		totalIterations += outcome.ReadOut.Iterations
		lastOutput = outcome.Output

		if outcome.ReadOut.IsYielded {
			return invocation.ReadOut{
				Iterations:     totalIterations,
				IsYielded:      true,
				YieldIndex:     outcome.ReadOut.YieldIndex,
				PendingCallIDs: outcome.ReadOut.PendingCallIDs,
				AwaitingInput:  outcome.ReadOut.AwaitingInput,
			}, nil, nil
		}
		switch outcome.ReadOut.EndReason {
		case model.EndError, model.EndAborted:
			return invocation.ReadOut{Iterations: totalIterations, EndReason: outcome.ReadOut.EndReason, Error: outcome.ReadOut.Error}, nil, nil
		}

		if l.yields {
			// The invocation boundary records the invocation_yield for this
			// read-out; appending one here as well would log it twice.
			return invocation.ReadOut{Iterations: totalIterations, IsYielded: true, YieldIndex: iteration, AwaitingInput: true}, lastOutput, nil
		}
	}

	return invocation.ReadOut{Iterations: totalIterations, EndReason: model.EndCompleted}, lastOutput, nil
}
