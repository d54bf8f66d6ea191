package eventlog

import (
	"testing"

	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeResumeContextNoSuspensionReturnsFalse(t *testing.T) {
	events := []model.Event{
		{Type: model.EventInvocationStart, InvocationID: "inv_1", Kind: model.KindAgent},
		{Type: model.EventInvocationEnd, InvocationID: "inv_1", Reason: model.EndCompleted},
	}
	_, ok := ComputeResumeContext(events)
	assert.False(t, ok)
}

func TestComputeResumeContextSingleSuspendedRoot(t *testing.T) {
	events := []model.Event{
		{Type: model.EventInvocationStart, InvocationID: "inv_1", Kind: model.KindAgent},
		{Type: model.EventInvocationYield, InvocationID: "inv_1", YieldIndex: 2, AwaitingInput: true},
	}
	rc, ok := ComputeResumeContext(events)
	require.True(t, ok)
	assert.Equal(t, "inv_1", rc.InvocationID)
	assert.Equal(t, 2, rc.YieldIndex)
	assert.Empty(t, rc.Children)
}

func TestComputeResumeContextNestedChain(t *testing.T) {
	events := []model.Event{
		{Type: model.EventInvocationStart, InvocationID: "inv_root", Kind: model.KindSequence},
		{Type: model.EventInvocationStart, InvocationID: "inv_child", ParentInvocationID: "inv_root", Kind: model.KindAgent},
		{Type: model.EventInvocationYield, InvocationID: "inv_child", YieldIndex: 0, AwaitingInput: true},
		{Type: model.EventInvocationYield, InvocationID: "inv_root", YieldIndex: 0, AwaitingInput: true},
	}

	rc, ok := ComputeResumeContext(events)
	require.True(t, ok)
	assert.Equal(t, "inv_root", rc.InvocationID)
	require.Len(t, rc.Children, 1)
	assert.Equal(t, "inv_child", rc.Children[0].InvocationID)
}

func TestComputeResumeContextResumedThenEndedIsNotSuspended(t *testing.T) {
	events := []model.Event{
		{Type: model.EventInvocationStart, InvocationID: "inv_1", Kind: model.KindAgent},
		{Type: model.EventInvocationYield, InvocationID: "inv_1", YieldIndex: 0, AwaitingInput: true},
		{Type: model.EventInvocationResume, InvocationID: "inv_1", YieldIndex: 0},
		{Type: model.EventInvocationEnd, InvocationID: "inv_1", Reason: model.EndCompleted},
	}
	_, ok := ComputeResumeContext(events)
	assert.False(t, ok, "a completed invocation must not be reported as suspended")
}

func TestComputeResumeContextParallelUnionOfChildren(t *testing.T) {
	events := []model.Event{
		{Type: model.EventInvocationStart, InvocationID: "inv_root", Kind: model.KindParallel},
		{Type: model.EventInvocationStart, InvocationID: "inv_a", ParentInvocationID: "inv_root", Kind: model.KindAgent},
		{Type: model.EventInvocationStart, InvocationID: "inv_b", ParentInvocationID: "inv_root", Kind: model.KindAgent},
		{Type: model.EventInvocationYield, InvocationID: "inv_a", YieldIndex: 0, AwaitingInput: true},
		{Type: model.EventInvocationYield, InvocationID: "inv_b", YieldIndex: 0, AwaitingInput: true},
		{Type: model.EventInvocationYield, InvocationID: "inv_root", YieldIndex: 0, AwaitingInput: true},
	}

	rc, ok := ComputeResumeContext(events)
	require.True(t, ok)
	require.Len(t, rc.Children, 2)
	ids := []string{rc.Children[0].InvocationID, rc.Children[1].InvocationID}
	assert.Contains(t, ids, "inv_a")
	assert.Contains(t, ids, "inv_b")
}

func TestComputeResumeContextPicksMostRecentRoot(t *testing.T) {
	events := []model.Event{
		{Type: model.EventInvocationStart, InvocationID: "inv_old", Kind: model.KindAgent},
		{Type: model.EventInvocationEnd, InvocationID: "inv_old", Reason: model.EndCompleted},
		{Type: model.EventInvocationStart, InvocationID: "inv_new", Kind: model.KindAgent},
		{Type: model.EventInvocationYield, InvocationID: "inv_new", YieldIndex: 1, AwaitingInput: true},
	}

	rc, ok := ComputeResumeContext(events)
	require.True(t, ok)
	assert.Equal(t, "inv_new", rc.InvocationID)
}
