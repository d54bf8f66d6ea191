package eventlog

import "github.com/continuum-run/agentcore/pkg/model"

// Accessor is "one accessor per scope" (design note §9): get/getMany/set/
// delete/update/toObject, implemented once and reused for all four scopes.
type Accessor interface {
	Get(key string) (any, bool)
	GetMany(keys ...string) map[string]any
	Set(key string, value any)
	Delete(key string)
	Update(delta map[string]any)
	ToMap() map[string]any
}

// BoundState is the accessor the engine hands to running invocations. For
// the session scope it is the sole authority (every mutation is a
// state_change event; reads are the live fold). For user/patient/practice
// it additionally observes the externally bound data: a read whose value
// differs from the last recorded observation appends a state_change with
// source "observation", so the session's own log stays a complete audit
// trail of externally owned state too.
type BoundState struct {
	session      *model.Session
	scope        model.Scope
	invocationID string
}

// NewBoundState returns an accessor for scope within the given session,
// attributing any mutation it performs to invocationID (may be empty for
// out-of-invocation bookkeeping).
func NewBoundState(session *model.Session, scope model.Scope, invocationID string) *BoundState {
	return &BoundState{session: session, scope: scope, invocationID: invocationID}
}

func (b *BoundState) currentFold() map[string]any {
	events := b.session.Events()
	// len(events)-1 is always in [-1, len(events)-1]; StateAt cannot error
	// on this call.
	state, _ := StateAt(events, len(events)-1, b.scope)
	return state
}

// Get reads a single key, observing externally bound scopes as needed.
func (b *BoundState) Get(key string) (any, bool) {
	if b.scope == model.ScopeSession {
		v, ok := b.currentFold()[key]
		return v, ok
	}

	binding := b.session.SharedBinding(b.scope)
	value, existsExternally := binding.Get(key)
	b.recordObservationIfChanged(key, value, existsExternally)

	if !existsExternally {
		return nil, false
	}
	return value, true
}

// GetMany reads several keys at once.
func (b *BoundState) GetMany(keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := b.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// Set writes a single key, recording a state_change{source:"direct"} for
// the session scope or {source:"mutation"} plus a binding write-back for
// externally owned scopes.
func (b *BoundState) Set(key string, value any) {
	b.applyDelta(map[string]any{key: value})
}

// Delete removes a key (a state_change whose NewValue is nil).
func (b *BoundState) Delete(key string) {
	b.applyDelta(map[string]any{key: nil})
}

// Update merges a delta of key/value pairs, recorded as one ordered
// state_change event.
func (b *BoundState) Update(delta map[string]any) {
	b.applyDelta(delta)
}

// ToMap returns the full current state for this scope.
func (b *BoundState) ToMap() map[string]any {
	if b.scope == model.ScopeSession {
		return b.currentFold()
	}
	return b.session.SharedBinding(b.scope).Snapshot()
}

func (b *BoundState) applyDelta(delta map[string]any) {
	if len(delta) == 0 {
		return
	}

	current := b.currentSourceOfTruth()
	values := make([]model.StateValue, 0, len(delta))
	for key, newValue := range delta {
		old, existed := current[key]
		var oldValue any
		if existed {
			oldValue = old
		}
		values = append(values, model.StateValue{Key: key, OldValue: oldValue, NewValue: newValue})
	}

	source := model.SourceDirect
	if b.scope != model.ScopeSession {
		source = model.SourceMutation
		binding := b.session.SharedBinding(b.scope)
		for _, v := range values {
			binding.Set(v.Key, v.NewValue)
		}
	}

	b.session.Append(model.Event{
		ID:           model.NewEventID(),
		Type:         model.EventStateChange,
		Scope:        b.scope,
		Source:       source,
		InvocationID: b.invocationID,
		Values:       values,
	})
}

func (b *BoundState) currentSourceOfTruth() map[string]any {
	if b.scope == model.ScopeSession {
		return b.currentFold()
	}
	return b.session.SharedBinding(b.scope).Snapshot()
}

func (b *BoundState) recordObservationIfChanged(key string, value any, existed bool) {
	lastObserved := b.currentFold()
	var newValue any
	if existed {
		newValue = value
	}
	delta, changed := ObservationDelta(lastObserved, key, newValue)
	if !changed {
		return
	}
	b.session.Append(model.Event{
		ID:           model.NewEventID(),
		Type:         model.EventStateChange,
		Scope:        b.scope,
		Source:       model.SourceObservation,
		InvocationID: b.invocationID,
		Values:       []model.StateValue{delta},
	})
}
