package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/model"
)

// FileService is the on-disk Service implementation: one JSON file per
// session under baseDir/sessions/<appName>/<sessionId>.json, and three flat
// JSON files under baseDir/state for the user/patient/practice scopes.
// Every operation loads and saves the whole session file; this is the
// teacher's own file-backend tradeoff (simplicity over partial writes),
// adequate for the moderate event-log sizes this runtime targets.
type FileService struct {
	baseDir  string
	stateDir string

	mu sync.Mutex // serializes every on-disk session read-modify-write

	stateMu        sync.RWMutex
	userStates     map[string]map[string]any
	patientStates  map[string]map[string]any
	practiceStates map[string]map[string]any
}

// NewFileService creates (if missing) baseDir and its state subdirectory and
// loads any previously persisted scoped state.
func NewFileService(baseDir string) (*FileService, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("sessions: create base directory: %w", err)
	}
	stateDir := filepath.Join(baseDir, "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("sessions: create state directory: %w", err)
	}

	f := &FileService{
		baseDir:        baseDir,
		stateDir:       stateDir,
		userStates:     make(map[string]map[string]any),
		patientStates:  make(map[string]map[string]any),
		practiceStates: make(map[string]map[string]any),
	}
	if err := f.loadScopedState(); err != nil {
		return nil, err
	}
	return f, nil
}

var _ Service = (*FileService)(nil)

func (f *FileService) sessionPath(appName, sessionID string) string {
	return filepath.Join(f.baseDir, "sessions", appName, sessionID+".json")
}

func (f *FileService) CreateSession(appName string, opts CreateOptions) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := opts.SessionID
	if id == "" {
		id = model.NewSessionID()
	}
	path := f.sessionPath(appName, id)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("sessions: session %q already exists for app %q", id, appName)
	}

	session := model.NewSession(appName, id, 0)
	session.Version = opts.Version
	session.UserID = opts.UserID
	session.PatientID = opts.PatientID
	session.PracticeID = opts.PracticeID
	f.bindScopes(session)

	if len(opts.InitialState) > 0 {
		eventlog.NewBoundState(session, model.ScopeSession, "").Update(opts.InitialState)
	}

	if err := f.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (f *FileService) GetSession(appName, sessionID string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, err := f.load(appName, sessionID)
	if err != nil {
		return nil, err
	}
	f.bindScopes(session)
	return session, nil
}

func (f *FileService) AppendEvent(session *model.Session, event model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	session.Append(event)
	return f.save(session)
}

func (f *FileService) DeleteSession(appName, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.sessionPath(appName, sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessions: delete session %q: %w", sessionID, err)
	}
	return nil
}

func (f *FileService) load(appName, sessionID string) (*model.Session, error) {
	data, err := os.ReadFile(f.sessionPath(appName, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrSessionNotFound{AppName: appName, SessionID: sessionID}
		}
		return nil, fmt.Errorf("sessions: read session %q: %w", sessionID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("sessions: decode session %q: %w", sessionID, err)
	}

	session := model.NewSession(snap.AppName, snap.ID, snap.CreatedAt)
	session.Version = snap.Version
	session.UserID = snap.UserID
	session.PatientID = snap.PatientID
	session.PracticeID = snap.PracticeID
	for _, e := range snap.Events {
		session.Append(e)
	}
	return session, nil
}

func (f *FileService) save(session *model.Session) error {
	path := f.sessionPath(session.AppName, session.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sessions: create session directory: %w", err)
	}

	snap := Snapshot{
		ID:         session.ID,
		AppName:    session.AppName,
		Version:    session.Version,
		UserID:     session.UserID,
		PatientID:  session.PatientID,
		PracticeID: session.PracticeID,
		CreatedAt:  session.CreatedAt,
		Events:     session.Events(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("sessions: encode session %q: %w", session.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sessions: write session %q: %w", session.ID, err)
	}
	return nil
}

// bindScopes wires the session's user/patient/practice bindings to this
// store's in-memory scoped-state maps, with write-back into those maps and
// a save of the scoped-state files on every mutation.
func (f *FileService) bindScopes(session *model.Session) {
	if session.UserID != "" {
		session.BindUserState(f.bindingFor(f.userStates, scopeKey(session.AppName, session.UserID)))
	}
	if session.PatientID != "" {
		session.BindPatientState(f.bindingFor(f.patientStates, scopeKey(session.AppName, session.PatientID)))
	}
	if session.PracticeID != "" {
		session.BindPracticeState(f.bindingFor(f.practiceStates, scopeKey(session.AppName, session.PracticeID)))
	}
}

func (f *FileService) bindingFor(store map[string]map[string]any, key string) *model.SharedStateBinding {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	data, ok := store[key]
	if !ok {
		data = make(map[string]any)
		store[key] = data
	}
	return model.NewSharedStateBinding(data, func(k string, _, newValue any) {
		f.stateMu.Lock()
		store[key][k] = newValue
		f.stateMu.Unlock()
		_ = f.saveScopedState()
	})
}

func (f *FileService) GetUserState(appName, userID string) map[string]any {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return copyState(f.userStates[scopeKey(appName, userID)])
}

func (f *FileService) SetUserState(appName, userID string, state map[string]any) {
	f.stateMu.Lock()
	f.userStates[scopeKey(appName, userID)] = copyState(state)
	f.stateMu.Unlock()
	_ = f.saveScopedState()
}

func (f *FileService) GetPatientState(appName, patientID string) map[string]any {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return copyState(f.patientStates[scopeKey(appName, patientID)])
}

func (f *FileService) SetPatientState(appName, patientID string, state map[string]any) {
	f.stateMu.Lock()
	f.patientStates[scopeKey(appName, patientID)] = copyState(state)
	f.stateMu.Unlock()
	_ = f.saveScopedState()
}

func (f *FileService) GetPracticeState(appName, practiceID string) map[string]any {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return copyState(f.practiceStates[scopeKey(appName, practiceID)])
}

func (f *FileService) SetPracticeState(appName, practiceID string, state map[string]any) {
	f.stateMu.Lock()
	f.practiceStates[scopeKey(appName, practiceID)] = copyState(state)
	f.stateMu.Unlock()
	_ = f.saveScopedState()
}

func (f *FileService) loadScopedState() error {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()

	if data, err := os.ReadFile(filepath.Join(f.stateDir, "user_states.json")); err == nil {
		_ = json.Unmarshal(data, &f.userStates)
	}
	if data, err := os.ReadFile(filepath.Join(f.stateDir, "patient_states.json")); err == nil {
		_ = json.Unmarshal(data, &f.patientStates)
	}
	if data, err := os.ReadFile(filepath.Join(f.stateDir, "practice_states.json")); err == nil {
		_ = json.Unmarshal(data, &f.practiceStates)
	}
	return nil
}

func (f *FileService) saveScopedState() error {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()

	if data, err := json.MarshalIndent(f.userStates, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(f.stateDir, "user_states.json"), data, 0o644)
	}
	if data, err := json.MarshalIndent(f.patientStates, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(f.stateDir, "patient_states.json"), data, 0o644)
	}
	if data, err := json.MarshalIndent(f.practiceStates, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(f.stateDir, "practice_states.json"), data, 0o644)
	}
	return nil
}
