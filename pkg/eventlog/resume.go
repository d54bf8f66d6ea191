package eventlog

import "github.com/continuum-run/agentcore/pkg/model"

// ResumeContext describes where a suspended runnable should re-enter. It is
// nested: a composite (sequence/loop/step-wrapping-agent) carries at most
// one suspended child, reachable through Children[0]; a parallel block can
// have several children suspended at once, so Children holds the union
// (spec §9's adopted resolution: "the parallel block yields with the union
// of pending calls and records all child yield indices for later resume").
type ResumeContext struct {
	InvocationID string
	YieldIndex   int
	Children     []ResumeContext
}

type invocationState struct {
	parentID       string
	agentName      string
	kind           model.InvocationKind
	lastYieldIndex int
	yielded        bool
}

// ComputeResumeContext walks the whole event log and reconstructs the
// still-suspended invocations as a tree: it returns the suspended root
// invocation, with its suspended descendants nested under Children. It returns
// (ResumeContext{}, false) if nothing in the log is currently suspended.
//
// The invocation tree (parent/child links, kind) is reconstructed entirely
// from parentInvocationId/kind fields already recorded on invocation_start
// events, so this does not need the runnable tree itself — only the
// fingerprint check (package fingerprint) needs the live runnable, to
// confirm it still matches the structure the suspended run was built from.
func ComputeResumeContext(events []model.Event) (ResumeContext, bool) {
	states := make(map[string]*invocationState)
	var order []string

	for _, e := range events {
		switch e.Type {
		case model.EventInvocationStart:
			if _, ok := states[e.InvocationID]; !ok {
				order = append(order, e.InvocationID)
			}
			states[e.InvocationID] = &invocationState{
				parentID:  e.ParentInvocationID,
				agentName: e.AgentName,
				kind:      e.Kind,
			}
		case model.EventInvocationResume:
			if st, ok := states[e.InvocationID]; ok {
				st.yielded = false
			}
		case model.EventInvocationYield:
			if st, ok := states[e.InvocationID]; ok {
				st.yielded = true
				st.lastYieldIndex = e.YieldIndex
			}
		case model.EventInvocationEnd:
			if st, ok := states[e.InvocationID]; ok {
				st.yielded = false
			}
		}
	}

	childrenOf := make(map[string][]string)
	var roots []string
	for _, id := range order {
		st := states[id]
		if st.parentID == "" {
			roots = append(roots, id)
		} else {
			childrenOf[st.parentID] = append(childrenOf[st.parentID], id)
		}
	}

	// The active root is the most recently started one with no parent that
	// is still suspended.
	var rootID string
	for i := len(roots) - 1; i >= 0; i-- {
		if states[roots[i]].yielded {
			rootID = roots[i]
			break
		}
	}
	if rootID == "" {
		return ResumeContext{}, false
	}

	return buildResumeContext(rootID, states, childrenOf), true
}

func buildResumeContext(id string, states map[string]*invocationState, childrenOf map[string][]string) ResumeContext {
	st := states[id]
	rc := ResumeContext{InvocationID: id, YieldIndex: st.lastYieldIndex}

	for _, childID := range childrenOf[id] {
		if cst, ok := states[childID]; ok && cst.yielded {
			rc.Children = append(rc.Children, buildResumeContext(childID, states, childrenOf))
		}
	}
	return rc
}
