package model

import (
	"sync"
	"time"
)

// SharedStateBinding borrows a mutable map owned by an outer store (the
// user/patient/practice record) with an optional write-back callback. The
// session never owns this data, only a reference plus the hook needed to
// persist writes.
type SharedStateBinding struct {
	mu       sync.RWMutex
	data     map[string]any
	onChange func(key string, oldValue, newValue any)
}

// NewSharedStateBinding wraps an externally owned map.
func NewSharedStateBinding(data map[string]any, onChange func(key string, oldValue, newValue any)) *SharedStateBinding {
	if data == nil {
		data = make(map[string]any)
	}
	return &SharedStateBinding{data: data, onChange: onChange}
}

// Snapshot returns a shallow copy of the bound data.
func (b *SharedStateBinding) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.data))
	for k, v := range b.data {
		out[k] = v
	}
	return out
}

// Get reads a single key.
func (b *SharedStateBinding) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	return v, ok
}

// Set writes a single key and invokes the write-back callback, if any.
func (b *SharedStateBinding) Set(key string, value any) {
	b.mu.Lock()
	old := b.data[key]
	b.data[key] = value
	cb := b.onChange
	b.mu.Unlock()
	if cb != nil {
		cb(key, old, value)
	}
}

// TempState is the per-invocation ephemeral scope. It is created lazily on
// first access, shallow-copied (with overrides) to children at handoff
// time, and cleared when the owning invocation ends.
type TempState struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewTempState returns an empty temp-state scope.
func NewTempState() *TempState {
	return &TempState{data: make(map[string]any)}
}

// Get reads a key.
func (t *TempState) Get(key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[key]
	return v, ok
}

// Set writes a key.
func (t *TempState) Set(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data[key] = value
}

// ToMap returns a shallow copy of the scope.
func (t *TempState) ToMap() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]any, len(t.data))
	for k, v := range t.data {
		out[k] = v
	}
	return out
}

// Fork creates a child temp-state scope: a shallow copy of the parent with
// the given per-key overrides applied on top. Child mutations never flow
// back to the parent.
func (t *TempState) Fork(overrides map[string]any) *TempState {
	child := NewTempState()
	for k, v := range t.ToMap() {
		child.data[k] = v
	}
	for k, v := range overrides {
		child.data[k] = v
	}
	return child
}

// Session owns the append-only event log and the ephemeral scopes for one
// conversation. Shared-state bindings for user/patient/practice are
// borrowed, not owned.
type Session struct {
	mu sync.RWMutex

	AppName   string `json:"appName"`
	ID        string `json:"id"`
	Version   string `json:"version,omitempty"`
	UserID    string `json:"userId,omitempty"`
	PatientID string `json:"patientId,omitempty"`
	PracticeID string `json:"practiceId,omitempty"`
	CreatedAt int64  `json:"createdAt"`

	events []Event

	userState     *SharedStateBinding
	patientState  *SharedStateBinding
	practiceState *SharedStateBinding

	// tempByInvocation holds each invocation's ephemeral scope, keyed by
	// invocationId. Created lazily, deleted on invocation end.
	tempByInvocation map[string]*TempState
}

// NewSession constructs an empty session.
func NewSession(appName, id string, createdAt int64) *Session {
	return &Session{
		AppName:          appName,
		ID:               id,
		CreatedAt:        createdAt,
		events:           make([]Event, 0, 16),
		userState:        NewSharedStateBinding(nil, nil),
		patientState:     NewSharedStateBinding(nil, nil),
		practiceState:    NewSharedStateBinding(nil, nil),
		tempByInvocation: make(map[string]*TempState),
	}
}

// BindUserState replaces the user-scope binding.
func (s *Session) BindUserState(b *SharedStateBinding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userState = b
}

// BindPatientState replaces the patient-scope binding.
func (s *Session) BindPatientState(b *SharedStateBinding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patientState = b
}

// BindPracticeState replaces the practice-scope binding.
func (s *Session) BindPracticeState(b *SharedStateBinding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.practiceState = b
}

// SharedBinding returns the binding for a non-session scope, or nil for
// ScopeSession (which has no external binding; it is folded from events).
func (s *Session) SharedBinding(scope Scope) *SharedStateBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch scope {
	case ScopeUser:
		return s.userState
	case ScopePatient:
		return s.patientState
	case ScopePractice:
		return s.practiceState
	default:
		return nil
	}
}

// Append pushes a new event onto the log. O(1), preserves order. This is
// the session's only mutator of history; callers go through a
// sessions.Service so appends can be externally serialized (§5). Stamps
// CreatedAt if the caller left it zero, so every call site need not know
// the wall-clock time itself.
func (s *Session) Append(e Event) {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a snapshot slice of the event log. The returned slice must
// not be mutated by callers.
func (s *Session) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of events currently in the log.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// TempStateFor returns (creating lazily if needed) the temp-state scope for
// an invocationId.
func (s *Session) TempStateFor(invocationID string) *TempState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tempByInvocation[invocationID]
	if !ok {
		ts = NewTempState()
		s.tempByInvocation[invocationID] = ts
	}
	return ts
}

// SetTempState installs an already-constructed temp-state scope for an
// invocationId (used when a child inherits a forked copy from its parent).
func (s *Session) SetTempState(invocationID string, ts *TempState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempByInvocation[invocationID] = ts
}

// ClearTempState drops the scope for an invocationId, called at invocation
// end.
func (s *Session) ClearTempState(invocationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tempByInvocation, invocationID)
}

// Clone returns a deep copy of the session: an independent event log and
// temp-state map, but shared-state bindings still point at the same
// externally owned data (cloning borrowed data is not this session's call
// to make).
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := &Session{
		AppName:          s.AppName,
		ID:               s.ID,
		Version:          s.Version,
		UserID:           s.UserID,
		PatientID:        s.PatientID,
		PracticeID:       s.PracticeID,
		CreatedAt:        s.CreatedAt,
		events:           make([]Event, len(s.events)),
		userState:        s.userState,
		patientState:     s.patientState,
		practiceState:    s.practiceState,
		tempByInvocation: make(map[string]*TempState, len(s.tempByInvocation)),
	}
	copy(clone.events, s.events)
	for id, ts := range s.tempByInvocation {
		clone.tempByInvocation[id] = ts.Fork(nil)
	}
	return clone
}

// ForkAt produces an independent session containing a deep copy of the
// prefix events[0:index] (exclusive of events at or beyond index). Used to
// branch history for time-travel / what-if execution.
func (s *Session) ForkAt(newID string, index int) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 {
		index = 0
	}
	if index > len(s.events) {
		index = len(s.events)
	}

	fork := NewSession(s.AppName, newID, s.CreatedAt)
	fork.Version = s.Version
	fork.UserID = s.UserID
	fork.PatientID = s.PatientID
	fork.PracticeID = s.PracticeID
	fork.userState = s.userState
	fork.patientState = s.patientState
	fork.practiceState = s.practiceState
	fork.events = make([]Event, index)
	copy(fork.events, s.events[:index])
	return fork
}
