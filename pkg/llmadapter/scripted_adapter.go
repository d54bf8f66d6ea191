package llmadapter

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedStep is one pre-recorded response a ScriptedAdapter will return
// on a successive call to Step.
type ScriptedStep struct {
	Deltas []StreamEvent
	Result ModelStepResult
	Err    error
}

// ScriptedAdapter is a test double that replays a fixed sequence of steps,
// grounded on the teacher's OllamaConnection test fakes: instead of hitting
// a real provider, the fakes assert against values built directly in Go
// rather than over HTTP. Each call to Step consumes the next scripted entry
// in order; calling Step more times than were scripted is a test bug and
// panics with a clear message rather than returning a zero value silently.
type ScriptedAdapter struct {
	mu    sync.Mutex
	steps []ScriptedStep
	calls []RenderContext
	next  int
}

// NewScriptedAdapter builds an adapter that replays steps in order.
func NewScriptedAdapter(steps ...ScriptedStep) *ScriptedAdapter {
	return &ScriptedAdapter{steps: steps}
}

// Calls returns the RenderContext passed to every Step call so far, in
// order, for assertions on what the driver actually sent.
func (a *ScriptedAdapter) Calls() []RenderContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]RenderContext(nil), a.calls...)
}

func (a *ScriptedAdapter) Step(ctx context.Context, rc RenderContext, cfg ModelConfig, onStream func(StreamEvent)) (ModelStepResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, rc)
	if a.next >= len(a.steps) {
		a.mu.Unlock()
		panic(fmt.Sprintf("llmadapter: ScriptedAdapter.Step called %d times but only %d steps scripted", a.next+1, len(a.steps)))
	}
	step := a.steps[a.next]
	a.next++
	a.mu.Unlock()

	for _, d := range step.Deltas {
		select {
		case <-ctx.Done():
			return ModelStepResult{}, ctx.Err()
		default:
		}
		if onStream != nil {
			onStream(d)
		}
	}

	if step.Err != nil {
		return ModelStepResult{}, step.Err
	}
	return step.Result, nil
}

var _ Adapter = (*ScriptedAdapter)(nil)
