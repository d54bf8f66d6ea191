// Package llmadapter defines the language-neutral boundary between the
// runnable engine and a specific model provider (spec §6.2). The core only
// depends on the Adapter interface; concrete provider adapters (Ollama,
// Anthropic, OpenAI, ...) are out of scope here and are expected to be
// supplied by the embedding application, the way the teacher repo's
// core.LLMConnection is implemented by pkg/llm.OllamaConnection but
// consumed by pkg/runners only through the interface.
package llmadapter

import (
	"context"

	"github.com/continuum-run/agentcore/pkg/model"
)

// ToolChoice constrains which, if any, tools the model may call next.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// FunctionToolSpec is the shape an adapter needs to describe one callable
// tool to the provider: name, description, and a JSON-schema-shaped
// parameter description (left as `any` since schema validation itself is
// out of scope, per spec Non-goals).
type FunctionToolSpec struct {
	Name        string
	Description string
	Parameters  any
	Yields      bool
}

// RenderContext is everything an adapter needs to take one model step,
// assembled by the agent driver from the current session fold and the
// running agent's configuration (spec §6.2).
type RenderContext struct {
	Events        []model.Event
	FunctionTools []FunctionToolSpec
	ProviderTools []any
	ToolChoice    ToolChoice
	OutputSchema  any
	AllowedTools  []string
	Agent         string
	InvocationID  string
	AgentName     string
	State         map[string]any
}

// ModelConfig carries provider-tunable generation parameters. Adapters
// interpret the fields they understand and ignore the rest.
type ModelConfig struct {
	Model       string
	Temperature *float32
	MaxTokens   *int
	TopP        *float32
	Timeout     int64 // milliseconds; 0 means adapter default
}

// StreamEventKind discriminates a delta event emitted mid-step.
type StreamEventKind string

const (
	StreamThoughtDelta   StreamEventKind = "thought_delta"
	StreamAssistantDelta StreamEventKind = "assistant_delta"
	StreamToolCallDelta  StreamEventKind = "tool_call_delta"
)

// StreamEvent is one incremental chunk of a model step, accumulated by the
// caller into the final ModelStepResult's stepEvents.
type StreamEvent struct {
	Kind StreamEventKind
	Text string
}

// ToolCall is one function invocation the model asked for in this step.
type ToolCall struct {
	CallID string
	Name   string
	Args   map[string]any
	Yields bool
}

// ModelStepResult is the terminal value of one call to Adapter.Step (spec
// §6.2): the stepEvents to append to the session, the tool calls (if any)
// the driver must now dispatch, and whether the model considers this turn
// complete without further tool activity.
type ModelStepResult struct {
	StepEvents   []model.Event
	ToolCalls    []ToolCall
	Terminal     bool
	Usage        *model.Usage
	FinishReason string
}

// Adapter is the interface every model provider implements. Step streams
// delta events to onStream as they arrive and returns the accumulated
// terminal result; it must respect ctx cancellation the way the teacher's
// OllamaConnection.GenerateContentStream respects its context via the
// select/ctx.Done() pattern in its streaming goroutine.
type Adapter interface {
	Step(ctx context.Context, rc RenderContext, cfg ModelConfig, onStream func(StreamEvent)) (ModelStepResult, error)
}
