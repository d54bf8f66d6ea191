package eventlog

import (
	"testing"

	"github.com/continuum-run/agentcore/pkg/agcerr"
	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateChange(scope model.Scope, values ...model.StateValue) model.Event {
	return model.Event{ID: model.NewEventID(), Type: model.EventStateChange, Scope: scope, Values: values}
}

func TestStateAtFoldsLeftToRight(t *testing.T) {
	events := []model.Event{
		stateChange(model.ScopeSession, model.StateValue{Key: "a", NewValue: 1}),
		stateChange(model.ScopeSession, model.StateValue{Key: "a", NewValue: 2}),
		stateChange(model.ScopeSession, model.StateValue{Key: "b", NewValue: "x"}),
	}

	state, err := StateAt(events, len(events)-1, model.ScopeSession)
	require.NoError(t, err)
	assert.Equal(t, 2, state["a"])
	assert.Equal(t, "x", state["b"])
}

func TestStateAtDeletesKeyOnNilNewValue(t *testing.T) {
	events := []model.Event{
		stateChange(model.ScopeSession, model.StateValue{Key: "a", NewValue: 1}),
		stateChange(model.ScopeSession, model.StateValue{Key: "a", NewValue: nil}),
	}

	state, err := StateAt(events, len(events)-1, model.ScopeSession)
	require.NoError(t, err)
	_, ok := state["a"]
	assert.False(t, ok)
}

func TestStateAtIgnoresOtherScopes(t *testing.T) {
	events := []model.Event{
		stateChange(model.ScopeSession, model.StateValue{Key: "a", NewValue: 1}),
		stateChange(model.ScopeUser, model.StateValue{Key: "a", NewValue: 2}),
	}

	state, err := StateAt(events, len(events)-1, model.ScopeSession)
	require.NoError(t, err)
	assert.Equal(t, 1, state["a"])
}

func TestStateAtIndexNegativeOneIsEmptyState(t *testing.T) {
	events := []model.Event{
		stateChange(model.ScopeSession, model.StateValue{Key: "a", NewValue: 1}),
	}
	state, err := StateAt(events, -1, model.ScopeSession)
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestStateAtReturnsDomainErrorOnOutOfRangeIndex(t *testing.T) {
	events := []model.Event{stateChange(model.ScopeSession)}

	_, err := StateAt(events, 5, model.ScopeSession)
	var validation *agcerr.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = StateAt(events, -2, model.ScopeSession)
	assert.ErrorAs(t, err, &validation)
}

func TestObservationDeltaSkipsUnchangedValue(t *testing.T) {
	last := map[string]any{"k": "v"}
	_, changed := ObservationDelta(last, "k", "v")
	assert.False(t, changed)
}

func TestObservationDeltaEmitsOnChange(t *testing.T) {
	last := map[string]any{"k": "old"}
	delta, changed := ObservationDelta(last, "k", "new")
	require.True(t, changed)
	assert.Equal(t, "old", delta.OldValue)
	assert.Equal(t, "new", delta.NewValue)
}

func TestObservationDeltaEmitsOnFirstSeen(t *testing.T) {
	last := map[string]any{}
	delta, changed := ObservationDelta(last, "k", "new")
	require.True(t, changed)
	assert.Nil(t, delta.OldValue)
	assert.Equal(t, "new", delta.NewValue)
}
