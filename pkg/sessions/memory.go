package sessions

import (
	"fmt"
	"sync"

	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/model"
	"golang.org/x/sync/singleflight"
)

// MemoryService is the in-memory Service implementation: every session and
// scoped-state map lives only in process memory, keyed by appName+id.
type MemoryService struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session

	stateMu        sync.RWMutex
	userStates     map[string]map[string]any
	patientStates  map[string]map[string]any
	practiceStates map[string]map[string]any

	// getGroup collapses concurrent GetSession calls for the same key into
	// one map lookup, so a burst of readers on a hot session (e.g. several
	// spawned children reading the parent's session at once) doesn't
	// contend the RWMutex any more than a single call would.
	getGroup singleflight.Group
}

// NewMemoryService builds an empty in-memory store.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		sessions:       make(map[string]*model.Session),
		userStates:     make(map[string]map[string]any),
		patientStates:  make(map[string]map[string]any),
		practiceStates: make(map[string]map[string]any),
	}
}

var _ Service = (*MemoryService)(nil)

func (m *MemoryService) CreateSession(appName string, opts CreateOptions) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := opts.SessionID
	if id == "" {
		id = model.NewSessionID()
	}
	key := sessionKey(appName, id)
	if _, exists := m.sessions[key]; exists {
		return nil, fmt.Errorf("sessions: session %q already exists for app %q", id, appName)
	}

	session := model.NewSession(appName, id, 0)
	session.Version = opts.Version
	session.UserID = opts.UserID
	session.PatientID = opts.PatientID
	session.PracticeID = opts.PracticeID

	if opts.UserID != "" {
		session.BindUserState(m.bindingFor(m.userStates, scopeKey(appName, opts.UserID)))
	}
	if opts.PatientID != "" {
		session.BindPatientState(m.bindingFor(m.patientStates, scopeKey(appName, opts.PatientID)))
	}
	if opts.PracticeID != "" {
		session.BindPracticeState(m.bindingFor(m.practiceStates, scopeKey(appName, opts.PracticeID)))
	}

	if len(opts.InitialState) > 0 {
		eventlog.NewBoundState(session, model.ScopeSession, "").Update(opts.InitialState)
	}

	m.sessions[key] = session
	return session, nil
}

func (m *MemoryService) bindingFor(store map[string]map[string]any, key string) *model.SharedStateBinding {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	data, ok := store[key]
	if !ok {
		data = make(map[string]any)
		store[key] = data
	}
	return model.NewSharedStateBinding(data, func(k string, _, newValue any) {
		m.stateMu.Lock()
		defer m.stateMu.Unlock()
		store[key][k] = newValue
	})
}

func (m *MemoryService) GetSession(appName, sessionID string) (*model.Session, error) {
	key := sessionKey(appName, sessionID)
	v, err, _ := m.getGroup.Do(key, func() (any, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		session, ok := m.sessions[key]
		if !ok {
			return nil, &ErrSessionNotFound{AppName: appName, SessionID: sessionID}
		}
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Session), nil
}

func (m *MemoryService) AppendEvent(session *model.Session, event model.Event) error {
	m.mu.RLock()
	_, ok := m.sessions[sessionKey(session.AppName, session.ID)]
	m.mu.RUnlock()
	if !ok {
		return &ErrSessionNotFound{AppName: session.AppName, SessionID: session.ID}
	}
	session.Append(event)
	return nil
}

func (m *MemoryService) DeleteSession(appName, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(appName, sessionID))
	return nil
}

func (m *MemoryService) GetUserState(appName, userID string) map[string]any {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return copyState(m.userStates[scopeKey(appName, userID)])
}

func (m *MemoryService) SetUserState(appName, userID string, state map[string]any) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.userStates[scopeKey(appName, userID)] = copyState(state)
}

func (m *MemoryService) GetPatientState(appName, patientID string) map[string]any {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return copyState(m.patientStates[scopeKey(appName, patientID)])
}

func (m *MemoryService) SetPatientState(appName, patientID string, state map[string]any) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.patientStates[scopeKey(appName, patientID)] = copyState(state)
}

func (m *MemoryService) GetPracticeState(appName, practiceID string) map[string]any {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return copyState(m.practiceStates[scopeKey(appName, practiceID)])
}

func (m *MemoryService) SetPracticeState(appName, practiceID string, state map[string]any) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.practiceStates[scopeKey(appName, practiceID)] = copyState(state)
}
