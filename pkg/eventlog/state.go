// Package eventlog implements the append-only event log's derived views:
// per-scope state projection, snapshots, status, invocation boundaries, and
// resume-context computation (spec §4.1).
package eventlog

import (
	"fmt"

	"github.com/continuum-run/agentcore/pkg/agcerr"
	"github.com/continuum-run/agentcore/pkg/model"
)

// StateAt folds every state_change event of the given scope over the
// prefix events[0:index+1] (inclusive), left to right. A NewValue of nil in
// the event's Values entry deletes the key (spec: "newValue === undefined
// means delete key" — Go's nil is the equivalent since there is no JSON
// "undefined").
//
// index must be in [-1, len(events)-1]; -1 yields the empty state (useful
// for "state before any event"). Any other out-of-range index is a domain
// error, returned rather than panicked, matching spec §4.1.
func StateAt(events []model.Event, index int, scope model.Scope) (map[string]any, error) {
	if index < -1 || index >= len(events) {
		return nil, &agcerr.ValidationError{Message: fmt.Sprintf("eventlog: index %d out of bounds for %d events", index, len(events))}
	}

	state := make(map[string]any)
	for i := 0; i <= index; i++ {
		e := events[i]
		if e.Type != model.EventStateChange || e.Scope != scope {
			continue
		}
		for _, v := range e.Values {
			if v.NewValue == nil {
				delete(state, v.Key)
				continue
			}
			state[v.Key] = v.NewValue
		}
	}
	return state, nil
}

// ObservationDelta compares a freshly read external value against the last
// value this session recorded for (scope, key) via a state_change of source
// "observation", and returns the StateValue to emit, or ok=false if the
// value has not changed and no event should be recorded. This is how the
// "at most once per (scope,key,value) transition" edge case in §4.1 is
// enforced.
func ObservationDelta(lastObserved map[string]any, key string, newValue any) (model.StateValue, bool) {
	old, existed := lastObserved[key]
	if existed && equalValue(old, newValue) {
		return model.StateValue{}, false
	}
	var oldValue any
	if existed {
		oldValue = old
	}
	return model.StateValue{Key: key, OldValue: oldValue, NewValue: newValue}, true
}

func equalValue(a, b any) bool {
	// Values in practice are JSON-shaped (string/number/bool/map/slice/nil);
	// a shallow comparison via fmt is sufficient to detect a no-op
	// observation without requiring every caller's value type to be
	// comparable.
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
