package model

// EventType discriminates the tagged variant carried by every Event.
type EventType string

const (
	EventSystem          EventType = "system"
	EventUser            EventType = "user"
	EventAssistant       EventType = "assistant"
	EventThought         EventType = "thought"
	EventToolCall        EventType = "tool_call"
	EventToolYield       EventType = "tool_yield"
	EventToolInput       EventType = "tool_input"
	EventToolResult      EventType = "tool_result"
	EventStateChange     EventType = "state_change"
	EventInvocationStart EventType = "invocation_start"
	EventInvocationResume EventType = "invocation_resume"
	EventInvocationYield EventType = "invocation_yield"
	EventInvocationEnd   EventType = "invocation_end"
	EventModelStart      EventType = "model_start"
	EventModelEnd        EventType = "model_end"
)

// Scope names a state namespace a state_change event targets.
type Scope string

const (
	ScopeSession  Scope = "session"
	ScopeUser     Scope = "user"
	ScopePatient  Scope = "patient"
	ScopePractice Scope = "practice"
)

// StateChangeSource records how a state_change event came about.
type StateChangeSource string

const (
	SourceDirect      StateChangeSource = "direct"
	SourceMutation    StateChangeSource = "mutation"
	SourceObservation StateChangeSource = "observation"
)

// HandoffOrigin records which orchestration handle created a child
// invocation, or that the parent agent transferred control outright.
type HandoffOrigin string

const (
	HandoffCall     HandoffOrigin = "call"
	HandoffSpawn    HandoffOrigin = "spawn"
	HandoffDispatch HandoffOrigin = "dispatch"
	HandoffTransfer HandoffOrigin = "transfer"
)

// InvocationKind names the runnable variant an invocation_start belongs to.
type InvocationKind string

const (
	KindAgent    InvocationKind = "agent"
	KindStep     InvocationKind = "step"
	KindSequence InvocationKind = "sequence"
	KindParallel InvocationKind = "parallel"
	KindLoop     InvocationKind = "loop"
)

// EndReason is the terminal classification of an invocation_end event.
type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndError     EndReason = "error"
	EndAborted   EndReason = "aborted"
	EndMaxSteps  EndReason = "max_steps"
)

// RunStatus is the derived status of a session (see eventlog.Status) or of
// a finished run (runner.RunResult.Status). It shares EndReason's four
// values (completed, error, aborted, max_steps) plus three statuses that
// never appear on invocation_end: active, awaiting_input and yielded.
type RunStatus string

const (
	StatusActive        RunStatus = "active"
	StatusAwaitingInput  RunStatus = "awaiting_input"
	StatusCompleted      RunStatus = "completed"
	StatusError          RunStatus = "error"
	StatusAborted        RunStatus = "aborted"
	StatusMaxSteps       RunStatus = "max_steps"
	StatusYielded        RunStatus = "yielded"
)

// StateValue is one key's before/after pair inside a state_change event.
type StateValue struct {
	Key      string `json:"key"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
}

// Event is the single append-only record type every component reads and
// writes. Only the fields relevant to Type are populated; the rest are the
// zero value. Modeling the tagged union this way (rather than as a Go
// interface per variant) keeps it encoding/json-round-trippable without
// custom marshalers, matching the plain-JSON wire format §6.5 requires.
type Event struct {
	ID        string    `json:"id"`
	CreatedAt int64     `json:"createdAt"`
	Type      EventType `json:"type"`

	// system / user / assistant / thought
	Text         string `json:"text,omitempty"`
	InvocationID string `json:"invocationId,omitempty"`
	AgentName    string `json:"agentName,omitempty"`
	ProviderCtx  any    `json:"providerContext,omitempty"`

	// tool_call
	CallID  string         `json:"callId,omitempty"`
	Name    string         `json:"name,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Yields  bool           `json:"yields,omitempty"`

	// tool_yield
	PreparedArgs map[string]any `json:"preparedArgs,omitempty"`

	// tool_input
	Input any `json:"input,omitempty"`

	// tool_result
	Result    any    `json:"result,omitempty"`
	ToolError string `json:"error,omitempty"`

	// state_change
	Scope  Scope             `json:"scope,omitempty"`
	Source StateChangeSource `json:"source,omitempty"`
	Values []StateValue      `json:"values,omitempty"`

	// invocation_start
	Kind             InvocationKind `json:"kind,omitempty"`
	ParentInvocationID string       `json:"parentInvocationId,omitempty"`
	HandoffOrigin    HandoffOrigin  `json:"handoffOrigin,omitempty"`
	Fingerprint      string         `json:"fingerprint,omitempty"`
	Version          string         `json:"version,omitempty"`

	// invocation_resume
	YieldIndex int `json:"yieldIndex,omitempty"`

	// invocation_yield
	PendingCallIDs []string `json:"pendingCallIds,omitempty"`
	AwaitingInput  bool     `json:"awaitingInput,omitempty"`

	// invocation_end
	Reason         EndReason `json:"reason,omitempty"`
	Iterations     int       `json:"iterations,omitempty"`
	EndError       string    `json:"endError,omitempty"`
	HandoffTarget  string    `json:"handoffTarget,omitempty"`

	// model_end
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
}

// Usage carries token accounting for a model_end event.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}
