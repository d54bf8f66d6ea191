package runnable

import (
	"context"
	"errors"
	"testing"

	"github.com/continuum-run/agentcore/pkg/fingerprint"
	"github.com/continuum-run/agentcore/pkg/invocation"
	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunnable lets tests script an outcome directly, including states
// (a yield, a handoff target) a Step cannot produce on its own.
type fakeRunnable struct {
	name    string
	outcome RunOutcome
	err     error
	calls   int
}

func (f *fakeRunnable) Name() string { return f.name }

func (f *fakeRunnable) FingerprintKind() string               { return "fake" }
func (f *fakeRunnable) FingerprintName() string               { return f.name }
func (f *fakeRunnable) FingerprintTools() []string            { return nil }
func (f *fakeRunnable) FingerprintYields() bool               { return false }
func (f *fakeRunnable) FingerprintChildren() []fingerprint.Node { return nil }

func (f *fakeRunnable) Run(ctx context.Context, rc *RunContext) (RunOutcome, error) {
	f.calls++
	return f.outcome, f.err
}

var _ Runnable = (*fakeRunnable)(nil)

func TestSequenceRunsChildrenInOrderAndReturnsLastOutput(t *testing.T) {
	rc, _ := newRunContext(t, "inv_seq")
	first := &fakeRunnable{name: "first", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted, Iterations: 1}, Output: "a"}}
	second := &fakeRunnable{name: "second", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted, Iterations: 2}, Output: "b"}}
	seq := NewSequence("seq", first, second)

	outcome, err := seq.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, "b", outcome.Output)
	assert.Equal(t, 3, outcome.ReadOut.Iterations)
}

func TestSequenceStopsOnFirstYield(t *testing.T) {
	rc, _ := newRunContext(t, "inv_seq")
	first := &fakeRunnable{name: "first", outcome: RunOutcome{ReadOut: invocation.ReadOut{IsYielded: true, YieldIndex: 4, PendingCallIDs: []string{"call_1"}}}}
	second := &fakeRunnable{name: "second", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted}}}
	seq := NewSequence("seq", first, second)

	outcome, err := seq.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, outcome.ReadOut.IsYielded)
	assert.Equal(t, []string{"call_1"}, outcome.ReadOut.PendingCallIDs)
	assert.Equal(t, 0, second.calls, "a yielded child must stop the sequence before the next child runs")
}

func TestSequenceStopsOnChildError(t *testing.T) {
	rc, _ := newRunContext(t, "inv_seq")
	first := &fakeRunnable{name: "first", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndError, Error: "boom"}}}
	second := &fakeRunnable{name: "second", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted}}}
	seq := NewSequence("seq", first, second)

	outcome, err := seq.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, model.EndError, outcome.ReadOut.EndReason)
	assert.Equal(t, 0, second.calls)
}

func TestSequencePropagatesRunnerError(t *testing.T) {
	rc, _ := newRunContext(t, "inv_seq")
	boom := errors.New("boom")
	first := &fakeRunnable{name: "first", err: boom}
	seq := NewSequence("seq", first)

	_, err := seq.Run(context.Background(), rc)
	assert.ErrorIs(t, err, boom)
}

func TestSequenceHandoffTargetEndsSequenceEarly(t *testing.T) {
	rc, _ := newRunContext(t, "inv_seq")
	first := &fakeRunnable{name: "first", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted, HandoffTarget: "escalate"}, Output: "a"}}
	second := &fakeRunnable{name: "second", outcome: RunOutcome{ReadOut: invocation.ReadOut{EndReason: model.EndCompleted}}}
	seq := NewSequence("seq", first, second)

	outcome, err := seq.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "escalate", outcome.ReadOut.HandoffTarget)
	assert.Equal(t, 0, second.calls)
}

func TestSequenceFingerprintYieldsIfAnyChildYields(t *testing.T) {
	quiet := NewStep("quiet", nil)
	loud := NewStep("loud", nil).WithYields()
	seq := NewSequence("seq", quiet, loud)

	assert.True(t, seq.FingerprintYields())
	assert.Len(t, seq.FingerprintChildren(), 2)
}

func TestChildIndexForResumeFindsOrdinalPosition(t *testing.T) {
	events := []model.Event{
		{Type: model.EventInvocationStart, ParentInvocationID: "parent", InvocationID: "child_a"},
		{Type: model.EventInvocationStart, ParentInvocationID: "parent", InvocationID: "child_b"},
		{Type: model.EventInvocationStart, ParentInvocationID: "other", InvocationID: "child_c"},
	}

	assert.Equal(t, 1, childIndexForResume(events, "parent", "child_b"))
	assert.Equal(t, 0, childIndexForResume(events, "parent", "missing"))
}
