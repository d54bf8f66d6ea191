package eventlog

import "github.com/continuum-run/agentcore/pkg/model"

// Snapshot bundles the derived view of a session at a given event index:
// all four scope states, the derived status, the current agent name, and
// the calls currently pending a yield resolution.
type Snapshot struct {
	Index         int
	SessionState  map[string]any
	UserState     map[string]any
	PatientState  map[string]any
	PracticeState map[string]any
	Status        model.RunStatus
	CurrentAgent  string
	PendingCalls  []string
}

// SnapshotAt computes the full derived view at eventIndex (inclusive).
// eventIndex == -1 yields the empty-log snapshot (active, no agent, no
// state), matching the edge case in §4.1.
func SnapshotAt(events []model.Event, eventIndex int) Snapshot {
	if eventIndex < -1 {
		eventIndex = -1
	}
	if eventIndex >= len(events) {
		eventIndex = len(events) - 1
	}

	prefix := events[:eventIndex+1]

	// eventIndex is clamped to [-1, len(events)-1] above, so StateAt can
	// never report an out-of-bounds error here.
	sessionState, _ := StateAt(events, eventIndex, model.ScopeSession)
	userState, _ := StateAt(events, eventIndex, model.ScopeUser)
	patientState, _ := StateAt(events, eventIndex, model.ScopePatient)
	practiceState, _ := StateAt(events, eventIndex, model.ScopePractice)

	return Snapshot{
		Index:         eventIndex,
		SessionState:  sessionState,
		UserState:     userState,
		PatientState:  patientState,
		PracticeState: practiceState,
		Status:        Status(prefix),
		CurrentAgent:  CurrentAgent(prefix),
		PendingCalls:  PendingCalls(prefix),
	}
}
