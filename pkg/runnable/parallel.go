package runnable

import (
	"context"
	"sync"

	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/fingerprint"
	"github.com/continuum-run/agentcore/pkg/invocation"
	"github.com/continuum-run/agentcore/pkg/model"
	"golang.org/x/sync/errgroup"
)

// MergeFunc combines each child's RunOutcome into the Parallel block's
// aggregated output (spec §4.5's "merge hook").
type MergeFunc func(outcomes []RunOutcome) (any, error)

// Parallel launches its children concurrently, each as its own invocation,
// waits for all of them, and aggregates via Merge. Abort propagates to
// every child; any single child yielding causes the whole block to yield
// with the union of pending calls (spec §4.5).
type Parallel struct {
	name     string
	children []Runnable
	merge    MergeFunc
}

// NewParallel builds a Parallel over children. If merge is nil, the
// aggregated output is the slice of each child's own output in order.
func NewParallel(name string, merge MergeFunc, children ...Runnable) *Parallel {
	return &Parallel{name: name, children: children, merge: merge}
}

func (p *Parallel) Name() string { return p.name }

func (p *Parallel) FingerprintKind() string    { return "parallel" }
func (p *Parallel) FingerprintName() string    { return p.name }
func (p *Parallel) FingerprintTools() []string { return nil }

func (p *Parallel) FingerprintYields() bool {
	for _, c := range p.children {
		if c.FingerprintYields() {
			return true
		}
	}
	return false
}

func (p *Parallel) FingerprintChildren() []fingerprint.Node {
	nodes := make([]fingerprint.Node, len(p.children))
	for i, c := range p.children {
		nodes[i] = c
	}
	return nodes
}

var _ Runnable = (*Parallel)(nil)

func (p *Parallel) Run(ctx context.Context, rc *RunContext) (RunOutcome, error) {
	return runWithBoundary(ctx, rc, model.KindParallel, func(ctx context.Context, push func(model.Event)) (invocation.ReadOut, any, error) {
		return p.execute(ctx, rc, push)
	})
}

func (p *Parallel) execute(ctx context.Context, rc *RunContext, push func(model.Event)) (invocation.ReadOut, any, error) {
	resumeByChildName := make(map[string]*eventlog.ResumeContext)
	if rc.Resume != nil {
		for i := range rc.Resume.Children {
			cr := &rc.Resume.Children[i]
			if name := agentNameForInvocation(rc.Session.Events(), cr.InvocationID); name != "" {
				resumeByChildName[name] = cr
			}
		}
	}

	outcomes := make([]RunOutcome, len(p.children))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, child := range p.children {
		i, child := i, child
		g.Go(func() error {
			childID := model.NewInvocationID()
			var childResume *eventlog.ResumeContext
			if cr, ok := resumeByChildName[child.Name()]; ok {
				childID = cr.InvocationID
				childResume = cr
			}

			childRC := &RunContext{
				Session:            rc.Session,
				Push:               push,
				Orchestration:      rc.Orchestration,
				State:              rc.State,
				TempState:          rc.TempState,
				InvocationID:       childID,
				ParentInvocationID: rc.InvocationID,
				AgentName:          child.Name(),
				MaxSteps:           rc.MaxSteps,
				Resume:             childResume,
			}

			outcome, err := child.Run(gctx, childRC)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return invocation.ReadOut{EndReason: model.EndError, Error: err.Error()}, nil, err
	}

	totalIterations := 0
	var pendingCallIDs []string
	anyYielded := false
	yieldIndex := 0
	for _, o := range outcomes {
		totalIterations += o.ReadOut.Iterations
		if o.ReadOut.IsYielded {
			anyYielded = true
			yieldIndex = o.ReadOut.YieldIndex
			pendingCallIDs = append(pendingCallIDs, o.ReadOut.PendingCallIDs...)
		}
	}
	if anyYielded {
		return invocation.ReadOut{
			Iterations:     totalIterations,
			IsYielded:      true,
			YieldIndex:     yieldIndex,
			PendingCallIDs: pendingCallIDs,
			AwaitingInput:  true,
		}, nil, nil
	}

	for _, o := range outcomes {
		switch o.ReadOut.EndReason {
		case model.EndError, model.EndAborted, model.EndMaxSteps:
			return invocation.ReadOut{Iterations: totalIterations, EndReason: o.ReadOut.EndReason, Error: o.ReadOut.Error}, nil, nil
		}
	}

	var output any
	if p.merge != nil {
		merged, err := p.merge(outcomes)
		if err != nil {
			return invocation.ReadOut{Iterations: totalIterations, EndReason: model.EndError, Error: err.Error()}, nil, err
		}
		output = merged
	} else {
		values := make([]any, len(outcomes))
		for i, o := range outcomes {
			values[i] = o.Output
		}
		output = values
	}

	return invocation.ReadOut{Iterations: totalIterations, EndReason: model.EndCompleted}, output, nil
}

func agentNameForInvocation(events []model.Event, invocationID string) string {
	for _, e := range events {
		if e.Type == model.EventInvocationStart && e.InvocationID == invocationID {
			return e.AgentName
		}
	}
	return ""
}
