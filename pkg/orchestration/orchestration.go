// Package orchestration implements the three handoff methods every agent
// execution context exposes to tool implementations (spec §4.6): call,
// spawn, and dispatch. It depends on package channel and package eventlog
// but never on package runnable — the dependency direction the other way
// around would cycle, since runnable dispatches tools that in turn call
// back into orchestration.Handles. Instead, orchestration describes the
// child it runs through the small ChildRunner interface below; package
// runnable's concrete Runnable implementations satisfy it structurally.
package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/continuum-run/agentcore/pkg/agcerr"
	"github.com/continuum-run/agentcore/pkg/channel"
	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/invocation"
	"github.com/continuum-run/agentcore/pkg/logging"
	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/continuum-run/agentcore/pkg/tools"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChildRunRequest is everything a ChildRunner needs to execute one child
// invocation on behalf of a handoff call.
type ChildRunRequest struct {
	Session            *model.Session
	InvocationID       string
	ParentInvocationID string
	HandoffOrigin      model.HandoffOrigin
	Message            string
	TempOverrides      map[string]any
	Push               func(model.Event)
}

// ChildRunResult is what a ChildRunner reports back.
type ChildRunResult struct {
	Output  any
	ReadOut invocation.ReadOut
}

// ChildRunner is implemented by package runnable's Runnable wrapper so that
// orchestration can drive child executions without importing it.
type ChildRunner interface {
	Run(ctx context.Context, req ChildRunRequest) (ChildRunResult, error)
}

// Registry resolves an agent name to the ChildRunner that executes it,
// analogous to a sub-agent lookup table.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]ChildRunner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]ChildRunner)}
}

// Register associates name with runner, overwriting any prior registration.
func (r *Registry) Register(name string, runner ChildRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = runner
}

// Get resolves name.
func (r *Registry) Get(name string) (ChildRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.agents[name]
	return runner, ok
}

// SpawnHandle is the awaitable handle returned by Handles.Spawn (spec
// §4.6). It structurally satisfies package tools' SpawnHandle interface.
type SpawnHandle struct {
	invocationID string
	future       *channel.Future
	abortOnce    sync.Once
	abort        func()
}

// InvocationID returns the spawned child's invocation id.
func (s *SpawnHandle) InvocationID() string { return s.invocationID }

// Wait blocks until the spawned child completes, or timeout elapses (0
// means no timeout beyond ctx).
func (s *SpawnHandle) Wait(ctx context.Context, timeout time.Duration) (any, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.future.Wait(waitCtx)
}

// Abort cancels the spawned child's execution.
func (s *SpawnHandle) Abort() {
	s.abortOnce.Do(func() {
		if s.abort != nil {
			s.abort()
		}
	})
}

var _ tools.SpawnHandle = (*SpawnHandle)(nil)

// Handles is the concrete set of handoff methods bound to one running
// invocation's parent context (spec §4.6): it mints child invocation ids,
// inherits temp state with overrides, and emits the matching
// handoffOrigin. It satisfies package tools' Handoff interface.
type Handles struct {
	registry     *Registry
	session      *model.Session
	invocationID string // the parent invocation these handles act on behalf of
	tempState    *model.TempState
	ch           *channel.Channel
	push         func(model.Event)
	log          *zap.Logger
}

// NewHandles builds the Handles exposed to tools running inside
// invocationID. ch is the shared event channel spawn/dispatch register
// against; push is the direct-call path used by call (synchronous, runs on
// the caller's own goroutine so it reuses the caller's push).
func NewHandles(registry *Registry, session *model.Session, invocationID string, tempState *model.TempState, ch *channel.Channel, push func(model.Event)) *Handles {
	return &Handles{
		registry:     registry,
		session:      session,
		invocationID: invocationID,
		tempState:    tempState,
		ch:           ch,
		push:         push,
		log:          logging.Named("orchestration").With(zap.String("parentInvocationId", invocationID)),
	}
}

var _ tools.Handoff = (*Handles)(nil)

func (h *Handles) resolve(agentName string) (ChildRunner, error) {
	runner, ok := h.registry.Get(agentName)
	if !ok {
		return nil, &agcerr.ValidationError{Message: fmt.Sprintf("no agent registered with name %q", agentName)}
	}
	return runner, nil
}

func (h *Handles) childTempState(overrides map[string]any) map[string]any {
	base := h.tempState.Fork(overrides)
	return base.ToMap()
}

func (h *Handles) appendMessage(message string, childInvocationID string) {
	if message == "" {
		return
	}
	h.session.Append(model.Event{
		ID:           model.NewEventID(),
		Type:         model.EventUser,
		Text:         message,
		InvocationID: childInvocationID,
	})
}

// Call runs agentName synchronously to completion, returning its output.
// It refuses to return if the child yielded (spec §4.6), surfacing
// agcerr.AbortedError instead so the caller tool sees a definite failure
// rather than a silently incomplete result.
func (h *Handles) Call(ctx context.Context, agentName string, message string, tempOverrides map[string]any) (any, error) {
	runner, err := h.resolve(agentName)
	if err != nil {
		return nil, err
	}

	childID := model.NewInvocationID()
	h.appendMessage(message, childID)

	result, err := runner.Run(ctx, ChildRunRequest{
		Session:            h.session,
		InvocationID:       childID,
		ParentInvocationID: h.invocationID,
		HandoffOrigin:      model.HandoffCall,
		Message:            message,
		TempOverrides:      h.childTempState(tempOverrides),
		Push:               h.push,
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", agentName, err)
	}
	if result.ReadOut.IsYielded {
		return nil, &agcerr.AbortedError{Reason: fmt.Sprintf("call to %s yielded instead of completing", agentName)}
	}
	return result.Output, nil
}

// Spawn launches agentName as a concurrent, awaitable background
// invocation registered on the shared channel as a non-main producer.
func (h *Handles) Spawn(ctx context.Context, agentName string, message string, tempOverrides map[string]any) (tools.SpawnHandle, error) {
	runner, err := h.resolve(agentName)
	if err != nil {
		return nil, err
	}

	childID := model.NewInvocationID()
	h.appendMessage(message, childID)

	childCtx, cancel := context.WithCancel(ctx)

	future, err := h.ch.RegisterGenerator(childID, false, func(gctx context.Context, push func(model.Event)) (any, error) {
		result, err := runner.Run(childCtx, ChildRunRequest{
			Session:            h.session,
			InvocationID:       childID,
			ParentInvocationID: h.invocationID,
			HandoffOrigin:      model.HandoffSpawn,
			Message:            message,
			TempOverrides:      h.childTempState(tempOverrides),
			Push:               push,
		})
		if err != nil {
			return nil, err
		}
		return result.Output, nil
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("spawn %s: %w", agentName, err)
	}

	return &SpawnHandle{invocationID: childID, future: future, abort: cancel}, nil
}

// Dispatch fires agentName off and never surfaces its error to the caller;
// failures are logged (spec §4.6).
func (h *Handles) Dispatch(ctx context.Context, agentName string, message string, tempOverrides map[string]any) {
	runner, err := h.resolve(agentName)
	if err != nil {
		h.log.Error("dispatch failed to resolve agent", zap.String("agent", agentName), zap.Error(err))
		return
	}

	childID := model.NewInvocationID()
	h.appendMessage(message, childID)

	_, err = h.ch.RegisterGenerator(childID, false, func(gctx context.Context, push func(model.Event)) (any, error) {
		result, err := runner.Run(gctx, ChildRunRequest{
			Session:            h.session,
			InvocationID:       childID,
			ParentInvocationID: h.invocationID,
			HandoffOrigin:      model.HandoffDispatch,
			Message:            message,
			TempOverrides:      h.childTempState(tempOverrides),
			Push:               push,
		})
		if err != nil {
			return nil, err
		}
		return result.Output, nil
	})
	if err != nil {
		h.log.Error("dispatch failed to register", zap.String("agent", agentName), zap.Error(err))
	}
}

// WaitForAll blocks until every future in futures has settled, collecting
// the first error. runnable.Parallel does not call it; Parallel runs its
// children under its own errgroup.
func WaitForAll(ctx context.Context, futures []*channel.Future) ([]any, error) {
	results := make([]any, len(futures))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		i, f := i, f
		g.Go(func() error {
			res, err := f.Wait(gctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
