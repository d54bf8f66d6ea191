// Package tools defines the function-tool abstraction the agent reasoning
// driver dispatches against: ordinary tools, yielding tools that suspend
// execution awaiting external input, and the retry/timeout policy wrapped
// around execution (spec §4.4 point 3).
package tools

import (
	"context"
	"time"

	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/model"
)

// Context is what a tool's Prepare/Execute/Finalize hooks receive: scoped
// state accessors, the orchestration handles (set by the agent driver),
// and identifying information for the call in flight.
type Context struct {
	Session      *model.Session
	InvocationID string
	CallID       string
	State        *eventlog.BoundState // session-scope accessor
	TempState    *model.TempState
	Handoff      Handoff
}

// Handoff is the subset of orchestration.Handles a tool needs, expressed
// as an interface here so package tools never imports package
// orchestration (which in turn depends on the runnable driver that
// dispatches tools — see DESIGN.md for the dependency-direction note).
type Handoff interface {
	Call(ctx context.Context, agentName string, message string, tempOverrides map[string]any) (any, error)
	Spawn(ctx context.Context, agentName string, message string, tempOverrides map[string]any) (SpawnHandle, error)
	Dispatch(ctx context.Context, agentName string, message string, tempOverrides map[string]any)
}

// SpawnHandle is the awaitable handle a spawned child execution returns.
type SpawnHandle interface {
	InvocationID() string
	Wait(ctx context.Context, timeout time.Duration) (any, error)
	Abort()
}

// Tool is the interface every function tool implements.
type Tool interface {
	Name() string
	Description() string
	// YieldSchema is non-nil when this tool pauses execution awaiting
	// external input instead of running to completion inline.
	YieldSchema() any
	Timeout() time.Duration
	RetryPolicy() RetryPolicy
	// Prepare runs before dispatch; for yielding tools its return value is
	// what is recorded on the tool_yield event as preparedArgs.
	Prepare(ctx context.Context, args map[string]any, tc *Context) (map[string]any, error)
	Execute(ctx context.Context, args map[string]any, tc *Context) (any, error)
	Finalize(ctx context.Context, tc *Context, result any, execErr error) error
}

// RetryPolicy configures the exponential-backoff-with-jitter retry applied
// around Execute.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy mirrors the teacher repo's default of three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 5 * time.Second}
}
