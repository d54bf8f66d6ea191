package model

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionAppendStampsCreatedAt(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	s.Append(Event{ID: "e1", Type: EventUser, Text: "hi"})

	events := s.Events()
	require.Len(t, events, 1)
	assert.NotZero(t, events[0].CreatedAt)
}

func TestSessionAppendPreservesExplicitCreatedAt(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	s.Append(Event{ID: "e1", Type: EventUser, CreatedAt: 42})

	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, int64(42), events[0].CreatedAt)
}

func TestSessionEventsReturnsIndependentSnapshot(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	s.Append(Event{ID: "e1", Type: EventUser})

	snap := s.Events()
	snap[0].Text = "mutated"

	again := s.Events()
	assert.NotEqual(t, "mutated", again[0].Text)
}

func TestSessionAppendIsConcurrencySafe(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Append(Event{ID: "e" + strconv.Itoa(n), Type: EventUser})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}

func TestTempStateForCreatesLazilyAndReuses(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	ts1 := s.TempStateFor("inv-1")
	ts1.Set("k", "v")

	ts2 := s.TempStateFor("inv-1")
	v, ok := ts2.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestClearTempStateDropsScope(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	ts := s.TempStateFor("inv-1")
	ts.Set("k", "v")
	s.ClearTempState("inv-1")

	fresh := s.TempStateFor("inv-1")
	_, ok := fresh.Get("k")
	assert.False(t, ok)
}

func TestTempStateForkCopiesParentAndAppliesOverrides(t *testing.T) {
	parent := NewTempState()
	parent.Set("a", 1)
	parent.Set("b", 2)

	child := parent.Fork(map[string]any{"b": 20, "c": 3})

	av, _ := child.Get("a")
	bv, _ := child.Get("b")
	cv, _ := child.Get("c")
	assert.Equal(t, 1, av)
	assert.Equal(t, 20, bv)
	assert.Equal(t, 3, cv)

	// mutating the child never flows back to the parent.
	child.Set("a", 99)
	pv, _ := parent.Get("a")
	assert.Equal(t, 1, pv)
}

func TestSharedStateBindingInvokesWriteBack(t *testing.T) {
	var gotKey string
	var gotOld, gotNew any
	binding := NewSharedStateBinding(map[string]any{"k": "old"}, func(key string, oldValue, newValue any) {
		gotKey, gotOld, gotNew = key, oldValue, newValue
	})

	binding.Set("k", "new")

	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "old", gotOld)
	assert.Equal(t, "new", gotNew)

	v, ok := binding.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestSessionCloneIsIndependentEventLog(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	s.Append(Event{ID: "e1", Type: EventUser})

	clone := s.Clone()
	clone.Append(Event{ID: "e2", Type: EventAssistant})

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestSessionCloneSharesBindings(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	binding := NewSharedStateBinding(map[string]any{"k": "v"}, nil)
	s.BindUserState(binding)

	clone := s.Clone()
	assert.Same(t, binding, clone.SharedBinding(ScopeUser))
}

func TestSessionForkAtTruncatesHistory(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	s.Append(Event{ID: "e1", Type: EventUser})
	s.Append(Event{ID: "e2", Type: EventAssistant})
	s.Append(Event{ID: "e3", Type: EventUser})

	fork := s.ForkAt("sess_2", 2)
	require.Equal(t, 2, fork.Len())
	assert.Equal(t, "e1", fork.Events()[0].ID)
	assert.Equal(t, "e2", fork.Events()[1].ID)
	assert.Equal(t, "sess_2", fork.ID)
}

func TestSessionForkAtClampsOutOfRangeIndex(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	s.Append(Event{ID: "e1", Type: EventUser})

	assert.Equal(t, 1, s.ForkAt("sess_2", 99).Len())
	assert.Equal(t, 0, s.ForkAt("sess_3", -5).Len())
}

func TestSharedBindingReturnsNilForSessionScope(t *testing.T) {
	s := NewSession("app", "sess_1", 0)
	assert.Nil(t, s.SharedBinding(ScopeSession))
}
