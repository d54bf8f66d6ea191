package eventlog

import (
	"testing"

	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundStateSessionScopeSetAppendsDirectStateChange(t *testing.T) {
	session := model.NewSession("app", "sess_1", 0)
	bs := NewBoundState(session, model.ScopeSession, "inv_1")

	bs.Set("k", "v")

	events := session.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStateChange, events[0].Type)
	assert.Equal(t, model.SourceDirect, events[0].Source)
	assert.Equal(t, "inv_1", events[0].InvocationID)

	v, ok := bs.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestBoundStateSessionScopeDeleteRemovesKey(t *testing.T) {
	session := model.NewSession("app", "sess_1", 0)
	bs := NewBoundState(session, model.ScopeSession, "")
	bs.Set("k", "v")
	bs.Delete("k")

	_, ok := bs.Get("k")
	assert.False(t, ok)
}

func TestBoundStateUpdateMergesAllKeysInOneEvent(t *testing.T) {
	session := model.NewSession("app", "sess_1", 0)
	bs := NewBoundState(session, model.ScopeSession, "")
	bs.Update(map[string]any{"a": 1, "b": 2})

	require.Len(t, session.Events(), 1)
	state := bs.ToMap()
	assert.Equal(t, 1, state["a"])
	assert.Equal(t, 2, state["b"])
}

func TestBoundStateUpdateNoopOnEmptyDelta(t *testing.T) {
	session := model.NewSession("app", "sess_1", 0)
	bs := NewBoundState(session, model.ScopeSession, "")
	bs.Update(map[string]any{})
	assert.Empty(t, session.Events())
}

func TestBoundStateExternalScopeWritesThroughBinding(t *testing.T) {
	session := model.NewSession("app", "sess_1", 0)
	binding := model.NewSharedStateBinding(nil, nil)
	session.BindUserState(binding)

	bs := NewBoundState(session, model.ScopeUser, "inv_1")
	bs.Set("k", "v")

	v, ok := binding.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	events := session.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.SourceMutation, events[0].Source)
}

func TestBoundStateExternalScopeRecordsObservationOnDrift(t *testing.T) {
	session := model.NewSession("app", "sess_1", 0)
	binding := model.NewSharedStateBinding(map[string]any{"k": "external"}, nil)
	session.BindUserState(binding)

	bs := NewBoundState(session, model.ScopeUser, "")
	v, ok := bs.Get("k")
	require.True(t, ok)
	assert.Equal(t, "external", v)

	events := session.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.SourceObservation, events[0].Source)

	// reading the same value again emits no further observation event.
	bs.Get("k")
	assert.Len(t, session.Events(), 1)
}

func TestBoundStateToMapSessionScopeReflectsFold(t *testing.T) {
	session := model.NewSession("app", "sess_1", 0)
	bs := NewBoundState(session, model.ScopeSession, "")
	bs.Update(map[string]any{"a": 1})

	assert.Equal(t, map[string]any{"a": 1}, bs.ToMap())
}
