// Package model defines the event-sourced data model shared by every
// component of the execution core: events, sessions, and the scoped state
// they project.
package model

import (
	"strings"

	"github.com/google/uuid"
)

// NewCallID returns a fresh tool-call identifier with the "call_" prefix and
// 24 hex characters required by the persisted event format.
func NewCallID() string {
	return "call_" + hex24()
}

// NewInvocationID returns a fresh invocation identifier with the "inv_"
// prefix and 24 hex characters required by the persisted event format.
func NewInvocationID() string {
	return "inv_" + hex24()
}

// NewEventID returns a fresh event identifier.
func NewEventID() string {
	return "evt_" + hex24()
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return "sess_" + hex24()
}

func hex24() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(id) < 24 {
		id = id + id
	}
	return id[:24]
}
