package tools

import (
	"context"
	"time"
)

// ExecuteFunc is the signature of a plain function tool's body.
type ExecuteFunc func(ctx context.Context, args map[string]any, tc *Context) (any, error)

// FunctionTool wraps a Go function as a Tool, skipping the schema-aware
// JSON-coercion machinery the teacher's reflection-based tool wrapper does:
// callers pass already-typed map[string]any args, and validation belongs to
// the caller's own Prepare if it needs one.
type FunctionTool struct {
	name        string
	description string
	yieldSchema any
	timeout     time.Duration
	retry       RetryPolicy

	prepare  func(ctx context.Context, args map[string]any, tc *Context) (map[string]any, error)
	execute  ExecuteFunc
	finalize func(ctx context.Context, tc *Context, result any, execErr error) error
}

// NewFunctionTool builds a FunctionTool with the teacher's default retry
// policy and no timeout; use the With* options to customize.
func NewFunctionTool(name, description string, execute ExecuteFunc) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		execute:     execute,
		retry:       DefaultRetryPolicy(),
	}
}

// WithYieldSchema marks this tool as yielding: execution suspends awaiting
// external input matching schema instead of running Execute to completion.
func (t *FunctionTool) WithYieldSchema(schema any) *FunctionTool {
	t.yieldSchema = schema
	return t
}

// WithTimeout bounds Execute to d.
func (t *FunctionTool) WithTimeout(d time.Duration) *FunctionTool {
	t.timeout = d
	return t
}

// WithRetryPolicy overrides the default retry policy.
func (t *FunctionTool) WithRetryPolicy(p RetryPolicy) *FunctionTool {
	t.retry = p
	return t
}

// WithPrepare attaches a Prepare hook.
func (t *FunctionTool) WithPrepare(fn func(ctx context.Context, args map[string]any, tc *Context) (map[string]any, error)) *FunctionTool {
	t.prepare = fn
	return t
}

// WithFinalize attaches a Finalize hook.
func (t *FunctionTool) WithFinalize(fn func(ctx context.Context, tc *Context, result any, execErr error) error) *FunctionTool {
	t.finalize = fn
	return t
}

func (t *FunctionTool) Name() string             { return t.name }
func (t *FunctionTool) Description() string      { return t.description }
func (t *FunctionTool) YieldSchema() any          { return t.yieldSchema }
func (t *FunctionTool) Timeout() time.Duration    { return t.timeout }
func (t *FunctionTool) RetryPolicy() RetryPolicy  { return t.retry }

func (t *FunctionTool) Prepare(ctx context.Context, args map[string]any, tc *Context) (map[string]any, error) {
	if t.prepare == nil {
		return args, nil
	}
	return t.prepare(ctx, args, tc)
}

func (t *FunctionTool) Execute(ctx context.Context, args map[string]any, tc *Context) (any, error) {
	return t.execute(ctx, args, tc)
}

func (t *FunctionTool) Finalize(ctx context.Context, tc *Context, result any, execErr error) error {
	if t.finalize == nil {
		return nil
	}
	return t.finalize(ctx, tc, result, execErr)
}

var _ Tool = (*FunctionTool)(nil)
