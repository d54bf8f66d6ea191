package eventlog

import (
	"strconv"

	"github.com/continuum-run/agentcore/pkg/model"
)

// Status derives the session's current status from the full prefix of
// events. awaiting_input wins over everything else: any unresolved
// tool_yield or any unresolved invocation_yield{awaitingInput:true} means
// the session is waiting on external input, regardless of what else
// happened. Otherwise the reason of the most recent invocation_end applies;
// with no invocation_end at all, the session is active.
func Status(events []model.Event) model.RunStatus {
	if awaitingInput(events) {
		return model.StatusAwaitingInput
	}

	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Type == model.EventInvocationEnd {
			switch e.Reason {
			case model.EndCompleted:
				return model.StatusCompleted
			case model.EndError:
				return model.StatusError
			case model.EndAborted:
				return model.StatusAborted
			case model.EndMaxSteps:
				return model.StatusMaxSteps
			}
			return model.StatusActive
		}
	}
	return model.StatusActive
}

func awaitingInput(events []model.Event) bool {
	if len(unresolvedYieldingToolCalls(events)) > 0 {
		return true
	}

	// invocation_yield{awaitingInput:true} without a matching
	// invocation_resume{invocationId,yieldIndex}.
	resumed := make(map[string]bool)
	for _, e := range events {
		if e.Type == model.EventInvocationResume {
			resumed[resumeKey(e.InvocationID, e.YieldIndex)] = true
		}
	}
	for _, e := range events {
		if e.Type == model.EventInvocationYield && e.AwaitingInput {
			if !resumed[resumeKey(e.InvocationID, e.YieldIndex)] {
				return true
			}
		}
	}
	return false
}

func resumeKey(invocationID string, yieldIndex int) string {
	return invocationID + "#" + strconv.Itoa(yieldIndex)
}

// unresolvedYieldingToolCalls returns the callIds of every tool_call with
// Yields=true (or every tool_yield, for the case where the yield event
// itself is the record of suspension) that has no matching tool_input yet.
func unresolvedYieldingToolCalls(events []model.Event) []string {
	resolved := make(map[string]bool)
	yielding := make(map[string]bool)
	order := make([]string, 0)

	for _, e := range events {
		switch e.Type {
		case model.EventToolCall:
			if e.Yields {
				if !yielding[e.CallID] {
					order = append(order, e.CallID)
				}
				yielding[e.CallID] = true
			}
		case model.EventToolYield:
			if !yielding[e.CallID] {
				order = append(order, e.CallID)
			}
			yielding[e.CallID] = true
		case model.EventToolInput:
			resolved[e.CallID] = true
		}
	}

	var pending []string
	for _, id := range order {
		if !resolved[id] {
			pending = append(pending, id)
		}
	}
	return pending
}

// PendingCalls returns the callIds awaiting a tool_input, in the order
// their yield was first observed.
func PendingCalls(events []model.Event) []string {
	return unresolvedYieldingToolCalls(events)
}

// CurrentAgent returns the agentName at the top of the currently open
// invocation stack (the innermost invocation_start/resume with no matching
// invocation_end yet), or "" if the stack is empty.
func CurrentAgent(events []model.Event) string {
	type frame struct {
		invocationID string
		agentName    string
	}
	var stack []frame

	agentByID := make(map[string]string)
	for _, e := range events {
		switch e.Type {
		case model.EventInvocationStart:
			agentByID[e.InvocationID] = e.AgentName
			stack = append(stack, frame{e.InvocationID, e.AgentName})
		case model.EventInvocationResume:
			name := agentByID[e.InvocationID]
			stack = append(stack, frame{e.InvocationID, name})
		case model.EventInvocationEnd:
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].invocationID == e.InvocationID {
					stack = append(stack[:i], stack[i+1:]...)
					break
				}
			}
		}
	}

	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1].agentName
}
