package eventlog

import (
	"fmt"

	"github.com/continuum-run/agentcore/pkg/model"
)

// InvocationBoundary locates the start/end index pair for an invocationId.
type InvocationBoundary struct {
	StartIndex int
	EndIndex   int // -1 if the invocation has not ended yet.
	AgentName  string
}

// FindInvocationBoundary scans the log for the invocation_start (or,
// failing that, the first invocation_resume) matching invocationID and the
// invocation_end that closes it, if any.
func FindInvocationBoundary(events []model.Event, invocationID string) (InvocationBoundary, error) {
	b := InvocationBoundary{StartIndex: -1, EndIndex: -1}

	for i, e := range events {
		if e.InvocationID != invocationID {
			continue
		}
		switch e.Type {
		case model.EventInvocationStart:
			if b.StartIndex == -1 {
				b.StartIndex = i
				b.AgentName = e.AgentName
			}
		case model.EventInvocationResume:
			if b.StartIndex == -1 {
				b.StartIndex = i
			}
		case model.EventInvocationEnd:
			b.EndIndex = i
		}
	}

	if b.StartIndex == -1 {
		return b, fmt.Errorf("eventlog: no invocation_start/resume found for invocationId %s", invocationID)
	}
	return b, nil
}
