// Package sessions implements the SessionService interface (spec §6.1): an
// in-memory store and a local on-disk store, both keyed by appName+sessionId.
package sessions

import (
	"fmt"

	"github.com/continuum-run/agentcore/pkg/model"
)

// CreateOptions configures session creation.
type CreateOptions struct {
	SessionID    string
	UserID       string
	PatientID    string
	PracticeID   string
	InitialState map[string]any
	Version      string
}

// Snapshot is the wire format for a persisted session (spec §6.1): a full
// session dump including its event log and the three externally owned
// scoped-state stores.
type Snapshot struct {
	ID            string         `json:"id"`
	AppName       string         `json:"appName"`
	Version       string         `json:"version,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	PatientID     string         `json:"patientId,omitempty"`
	PracticeID    string         `json:"practiceId,omitempty"`
	CreatedAt     int64          `json:"createdAt"`
	Events        []model.Event  `json:"events"`
	State         map[string]any `json:"state,omitempty"`
	UserState     map[string]any `json:"userState,omitempty"`
	PatientState  map[string]any `json:"patientState,omitempty"`
	PracticeState map[string]any `json:"practiceState,omitempty"`
}

// Service is the SessionService boundary (spec §6.1).
type Service interface {
	CreateSession(appName string, opts CreateOptions) (*model.Session, error)
	GetSession(appName, sessionID string) (*model.Session, error)
	AppendEvent(session *model.Session, event model.Event) error
	DeleteSession(appName, sessionID string) error

	GetUserState(appName, userID string) map[string]any
	SetUserState(appName, userID string, state map[string]any)
	GetPatientState(appName, patientID string) map[string]any
	SetPatientState(appName, patientID string, state map[string]any)
	GetPracticeState(appName, practiceID string) map[string]any
	SetPracticeState(appName, practiceID string, state map[string]any)
}

// ErrSessionNotFound is returned by operations on a session key the store
// has never seen.
type ErrSessionNotFound struct {
	AppName   string
	SessionID string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("sessions: no session %q for app %q", e.SessionID, e.AppName)
}

func sessionKey(appName, sessionID string) string {
	return appName + "/" + sessionID
}

func scopeKey(appName, id string) string {
	return appName + "/" + id
}

func copyState(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
