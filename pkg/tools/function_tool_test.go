package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionToolDefaultsPassArgsThroughPrepare(t *testing.T) {
	tool := NewFunctionTool("echo", "echoes args", func(ctx context.Context, args map[string]any, tc *Context) (any, error) {
		return args["in"], nil
	})

	prepared, err := tool.Prepare(context.Background(), map[string]any{"in": "value"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "value", prepared["in"])

	out, err := tool.Execute(context.Background(), prepared, nil)
	require.NoError(t, err)
	assert.Equal(t, "value", out)
}

func TestFunctionToolDefaultRetryPolicyIsThreeAttempts(t *testing.T) {
	tool := NewFunctionTool("noop", "", nil)
	assert.Equal(t, 3, tool.RetryPolicy().MaxAttempts)
}

func TestFunctionToolWithPrepareOverridesDefault(t *testing.T) {
	tool := NewFunctionTool("custom", "", func(ctx context.Context, args map[string]any, tc *Context) (any, error) {
		return nil, nil
	}).WithPrepare(func(ctx context.Context, args map[string]any, tc *Context) (map[string]any, error) {
		return map[string]any{"rewritten": true}, nil
	})

	prepared, err := tool.Prepare(context.Background(), map[string]any{"original": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rewritten": true}, prepared)
}

func TestFunctionToolWithYieldSchemaMarksTool(t *testing.T) {
	tool := NewFunctionTool("pause", "", nil).WithYieldSchema(map[string]any{"type": "object"})
	assert.NotNil(t, tool.YieldSchema())
}

func TestFunctionToolWithTimeoutAndRetryPolicy(t *testing.T) {
	tool := NewFunctionTool("bound", "", nil).
		WithTimeout(5 * time.Second).
		WithRetryPolicy(RetryPolicy{MaxAttempts: 1})

	assert.Equal(t, 5*time.Second, tool.Timeout())
	assert.Equal(t, 1, tool.RetryPolicy().MaxAttempts)
}

func TestFunctionToolFinalizeDefaultsToNoop(t *testing.T) {
	tool := NewFunctionTool("noop", "", nil)
	assert.NoError(t, tool.Finalize(context.Background(), nil, nil, nil))
}

func TestFunctionToolFinalizeReceivesExecutionOutcome(t *testing.T) {
	var gotResult any
	var gotErr error
	tool := NewFunctionTool("noop", "", nil).WithFinalize(func(ctx context.Context, tc *Context, result any, execErr error) error {
		gotResult, gotErr = result, execErr
		return nil
	})

	boom := errors.New("exec failed")
	err := tool.Finalize(context.Background(), nil, "partial", boom)
	require.NoError(t, err)
	assert.Equal(t, "partial", gotResult)
	assert.ErrorIs(t, gotErr, boom)
}
