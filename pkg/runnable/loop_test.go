package runnable

import (
	"context"
	"testing"

	"github.com/continuum-run/agentcore/pkg/invocation"
	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsUntilWhilePredicateFalse(t *testing.T) {
	rc, _ := newRunContext(t, "inv_loop")
	child := &fakeRunnable{name: "body", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted, Iterations: 1}, Output: "tick"}}
	loop := NewLoop("loop", child, func(rc *RunContext, iteration int) bool { return iteration < 3 }, 0)

	outcome, err := loop.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 3, child.calls)
	assert.Equal(t, model.EndCompleted, outcome.ReadOut.EndReason)
	assert.Equal(t, "tick", outcome.Output)
	assert.Equal(t, 3, outcome.ReadOut.Iterations)
}

func TestLoopStopsAtMaxIterationsEvenIfWhileAlwaysTrue(t *testing.T) {
	rc, _ := newRunContext(t, "inv_loop")
	child := &fakeRunnable{name: "body", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted, Iterations: 1}}}
	loop := NewLoop("loop", child, func(rc *RunContext, iteration int) bool { return true }, 2)

	_, err := loop.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 2, child.calls)
}

func TestLoopStopsOnChildYield(t *testing.T) {
	rc, _ := newRunContext(t, "inv_loop")
	child := &fakeRunnable{name: "body", outcome: RunOutcome{ReadOut: invocation.ReadOut{IsYielded: true, YieldIndex: 1, PendingCallIDs: []string{"call_1"}}}}
	loop := NewLoop("loop", child, func(rc *RunContext, iteration int) bool { return true }, 10)

	outcome, err := loop.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, outcome.ReadOut.IsYielded)
	assert.Equal(t, 1, child.calls)
}

func TestLoopStopsOnChildError(t *testing.T) {
	rc, _ := newRunContext(t, "inv_loop")
	child := &fakeRunnable{name: "body", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndError, Error: "boom"}}}
	loop := NewLoop("loop", child, func(rc *RunContext, iteration int) bool { return true }, 10)

	outcome, err := loop.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, model.EndError, outcome.ReadOut.EndReason)
	assert.Equal(t, 1, child.calls)
}

func TestLoopBetweenIterationYieldEmitsInvocationYieldEvent(t *testing.T) {
	rc, session := newRunContext(t, "inv_loop")
	child := &fakeRunnable{name: "body", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted, Iterations: 1}}}
	loop := NewLoop("loop", child, func(rc *RunContext, iteration int) bool { return true }, 10).WithBetweenIterationYield()

	outcome, err := loop.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, outcome.ReadOut.IsYielded)
	assert.Equal(t, 1, child.calls, "a between-iteration yield stops after the first iteration completes")

	events := session.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.EventInvocationStart, events[0].Type)
	assert.Equal(t, model.EventInvocationYield, events[1].Type)
	assert.True(t, events[1].AwaitingInput)
}

func TestLoopContextCancellationAborts(t *testing.T) {
	rc, _ := newRunContext(t, "inv_loop")
	child := &fakeRunnable{name: "body", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted}}}
	loop := NewLoop("loop", child, func(rc *RunContext, iteration int) bool { return true }, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := loop.Run(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, model.EndAborted, outcome.ReadOut.EndReason)
	assert.Equal(t, 0, child.calls)
}

func TestLoopFingerprintYieldsWhenChildYields(t *testing.T) {
	yielding := NewStep("pauses", nil).WithYields()
	loop := NewLoop("loop", yielding, nil, 1)
	assert.True(t, loop.FingerprintYields())
	assert.Nil(t, loop.FingerprintTools())
}
