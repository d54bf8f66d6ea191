package runnable

import (
	"context"

	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/fingerprint"
	"github.com/continuum-run/agentcore/pkg/invocation"
	"github.com/continuum-run/agentcore/pkg/model"
)

// Sequence runs its children left-to-right, propagating the first
// non-completed status immediately (spec §4.5).
type Sequence struct {
	name     string
	children []Runnable
}

// NewSequence builds a Sequence over children, run in the given order.
func NewSequence(name string, children ...Runnable) *Sequence {
	return &Sequence{name: name, children: children}
}

func (s *Sequence) Name() string { return s.name }

func (s *Sequence) FingerprintKind() string    { return "sequence" }
func (s *Sequence) FingerprintName() string    { return s.name }
func (s *Sequence) FingerprintTools() []string { return nil }

func (s *Sequence) FingerprintYields() bool {
	for _, c := range s.children {
		if c.FingerprintYields() {
			return true
		}
	}
	return false
}

func (s *Sequence) FingerprintChildren() []fingerprint.Node {
	nodes := make([]fingerprint.Node, len(s.children))
	for i, c := range s.children {
		nodes[i] = c
	}
	return nodes
}

var _ Runnable = (*Sequence)(nil)

func (s *Sequence) Run(ctx context.Context, rc *RunContext) (RunOutcome, error) {
	return runWithBoundary(ctx, rc, model.KindSequence, func(ctx context.Context, push func(model.Event)) (invocation.ReadOut, any, error) {
		return s.execute(ctx, rc, push)
	})
}

func (s *Sequence) execute(ctx context.Context, rc *RunContext, push func(model.Event)) (invocation.ReadOut, any, error) {
	startIndex := 0
	var resumeForStart *eventlog.ResumeContext
	if rc.Resume != nil && len(rc.Resume.Children) > 0 {
		resumeForStart = &rc.Resume.Children[0]
		startIndex = childIndexForResume(rc.Session.Events(), rc.InvocationID, resumeForStart.InvocationID)
	}

	totalIterations := 0
	var lastOutput any

	for i := startIndex; i < len(s.children); i++ {
		child := s.children[i]
		childID := model.NewInvocationID()
		var childResume *eventlog.ResumeContext
		if i == startIndex && resumeForStart != nil {
			childID = resumeForStart.InvocationID
			childResume = resumeForStart
		}

		childRC := &RunContext{
			Session:            rc.Session,
			Push:                push,
			Orchestration:       rc.Orchestration,
			State:               rc.State,
			TempState:           rc.TempState,
			InvocationID:        childID,
			ParentInvocationID:  rc.InvocationID,
			AgentName:           child.Name(),
			MaxSteps:            rc.MaxSteps,
			Resume:              childResume,
		}

		outcome, err := child.Run(ctx, childRC)
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
		case model.EndError, model.EndAborted, model.EndMaxSteps:
			return invocation.ReadOut{Iterations: totalIterations, EndReason: outcome.ReadOut.EndReason, Error: outcome.ReadOut.Error}, nil, nil
		}
		if outcome.ReadOut.HandoffTarget != "" {
			return invocation.ReadOut{Iterations: totalIterations, EndReason: model.EndCompleted, HandoffTarget: outcome.ReadOut.HandoffTarget}, lastOutput, nil
		}
	}

	return invocation.ReadOut{Iterations: totalIterations, EndReason: model.EndCompleted}, lastOutput, nil
}

// childIndexForResume finds the ordinal position among parentID's direct
// child invocations (in first-seen order) of targetInvocationID, so a
// resuming Sequence knows which of its children to re-enter (spec §4.7's
// "locates the child index at which execution suspended").
func childIndexForResume(events []model.Event, parentID, targetInvocationID string) int {
	seen := make(map[string]bool)
	var order []string
	for _, e := range events {
		if e.Type == model.EventInvocationStart && e.ParentInvocationID == parentID && !seen[e.InvocationID] {
			seen[e.InvocationID] = true
			order = append(order, e.InvocationID)
		}
	}
	for i, id := range order {
		if id == targetInvocationID {
			return i
		}
	}
	return 0
}
