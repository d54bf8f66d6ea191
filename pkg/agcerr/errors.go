// Package agcerr defines the error taxonomy from spec §7 as typed errors,
// so callers can errors.As against a specific kind instead of matching on
// strings.
package agcerr

import "fmt"

// ValidationError signals an invalid runnable structure, missing required
// config, or a tool schema rejection. Fatal to the current invocation.
type ValidationError struct {
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation: %s: %v", e.Message, e.Cause)
	}
	return "validation: " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// PipelineStructureChangedError signals a fingerprint mismatch at resume.
// Fatal; the session cannot be resumed with this runnable.
type PipelineStructureChangedError struct {
	Expected string
	Actual   string
}

func (e *PipelineStructureChangedError) Error() string {
	return fmt.Sprintf("pipeline structure changed: expected fingerprint %s, got %s", e.Expected, e.Actual)
}

// AbortedError signals user- or timeout-initiated cancellation.
type AbortedError struct {
	Reason string
}

func (e *AbortedError) Error() string {
	if e.Reason == "" {
		return "aborted"
	}
	return "aborted: " + e.Reason
}

// ModelFatalError is a non-retryable model error routed through the
// error-handler chain.
type ModelFatalError struct {
	Message string
	Cause   error
}

func (e *ModelFatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("model fatal: %s: %v", e.Message, e.Cause)
	}
	return "model fatal: " + e.Message
}

func (e *ModelFatalError) Unwrap() error { return e.Cause }

// ToolExecutionError is thrown from a tool's execute step. It is recorded
// as a tool_result{error} and the agent loop continues unless an error
// handler escalates it.
type ToolExecutionError struct {
	ToolName string
	CallID   string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q (call %s) failed: %v", e.ToolName, e.CallID, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// OutputParseError signals the agent's structured output could not be
// coerced to its declared schema.
type OutputParseError struct {
	Message string
	Cause   error
}

func (e *OutputParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("output parse: %s: %v", e.Message, e.Cause)
	}
	return "output parse: " + e.Message
}

func (e *OutputParseError) Unwrap() error { return e.Cause }

// TimeoutError is the error surfaced when an abort is scheduled after a
// configured timeout elapses.
type TimeoutError struct {
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

// StreamConsumedError is returned when a runner.StreamResult's event stream
// is requested more than once (spec §9's single-consumer channel carried
// through to the runner boundary).
type StreamConsumedError struct{}

func (e *StreamConsumedError) Error() string { return "stream already consumed" }
