package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolResultAndInvocationEndErrorFieldsRoundTripIndependently(t *testing.T) {
	toolResult := Event{ID: "e1", Type: EventToolResult, CallID: "call_1", ToolError: "tool blew up"}
	invocationEnd := Event{ID: "e2", Type: EventInvocationEnd, Reason: EndError, EndError: "invocation blew up"}

	data, err := json.Marshal([]Event{toolResult, invocationEnd})
	require.NoError(t, err)

	var decoded []Event
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "tool blew up", decoded[0].ToolError)
	assert.Empty(t, decoded[0].EndError)
	assert.Equal(t, "invocation blew up", decoded[1].EndError)
	assert.Empty(t, decoded[1].ToolError)
}
