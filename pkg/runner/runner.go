// Package runner composes every other package into the single entry point
// an application calls: sessions, orchestration, the channel transport, and
// the runnable tree, wired together the way the teacher's pkg/runners.Runner
// wires agent, session service, and event channel, but generalized to the
// suspend/resume and fingerprint-validated semantics this runtime adds.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/continuum-run/agentcore/pkg/channel"
	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/fingerprint"
	"github.com/continuum-run/agentcore/pkg/logging"
	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/continuum-run/agentcore/pkg/orchestration"
	"github.com/continuum-run/agentcore/pkg/runnable"
	"github.com/continuum-run/agentcore/pkg/sessions"
	"go.uber.org/zap"
)

// Config configures a Runner, following the teacher's DefaultXConfig +
// functional-struct convention.
type Config struct {
	// MaxSteps bounds an Agent's reasoning loop when a call site doesn't
	// override it (spec §4.4's stated default).
	MaxSteps int
}

// DefaultConfig mirrors the teacher's DefaultRunnerConfig: sane defaults
// for a cold-start runner.
func DefaultConfig() *Config {
	return &Config{MaxSteps: 16}
}

// RunRequest is everything Run needs to resume or start one session's
// conversation.
type RunRequest struct {
	SessionID     string
	UserID        string
	PatientID     string
	PracticeID    string
	Message       string
	TempOverrides map[string]any
}

// RunResult is the terminal outcome exposed once a run's stream finishes.
type RunResult struct {
	Status         model.RunStatus
	Output         any
	Error          string
	PendingCallIDs []string
	Session        *model.Session
}

// Runner is the composition root: one app, one root runnable, one session
// service, a shared sub-agent registry for handoffs.
type Runner struct {
	appName  string
	root     runnable.Runnable
	sessions sessions.Service
	registry *orchestration.Registry
	config   *Config
	version  string
	log      *zap.Logger

	chMu     sync.RWMutex
	channels map[string]*channel.Channel // sessionID -> the channel backing its in-flight run
}

// New builds a Runner with default configuration. Register additional
// sub-agents the root can hand off to via Register before calling Run.
func New(appName string, root runnable.Runnable, sessionService sessions.Service) *Runner {
	return NewWithConfig(appName, root, sessionService, DefaultConfig())
}

// NewWithConfig builds a Runner with explicit configuration.
func NewWithConfig(appName string, root runnable.Runnable, sessionService sessions.Service, config *Config) *Runner {
	if config == nil {
		config = DefaultConfig()
	}
	r := &Runner{
		appName:  appName,
		root:     root,
		sessions: sessionService,
		registry: orchestration.NewRegistry(),
		config:   config,
		log:      logging.Named("runner").With(zap.String("app", appName)),
		channels: make(map[string]*channel.Channel),
	}
	r.Register(root.Name(), root)
	return r
}

// Register makes name callable via call/spawn/dispatch from any running
// invocation's tool handoff.
func (r *Runner) Register(name string, child runnable.Runnable) {
	r.registry.Register(name, &runnable.ChildRunnerAdapter{
		Runnable: child,
		State:    r.stateFor,
		Orch:     r.handlesFor,
	})
}

// SetVersion stamps every root invocation_start with a version string,
// recorded for audit/debugging; it plays no role in fingerprint validation.
func (r *Runner) SetVersion(v string) { r.version = v }

func (r *Runner) stateFor(session *model.Session, invocationID string) *eventlog.BoundState {
	return eventlog.NewBoundState(session, model.ScopeSession, invocationID)
}

func (r *Runner) handlesFor(session *model.Session, invocationID string, temp *model.TempState, push func(model.Event)) *orchestration.Handles {
	return orchestration.NewHandles(r.registry, session, invocationID, temp, r.channelForID(session.ID), push)
}

func (r *Runner) channelForID(sessionID string) *channel.Channel {
	r.chMu.RLock()
	defer r.chMu.RUnlock()
	return r.channels[sessionID]
}

func (r *Runner) setChannel(sessionID string, ch *channel.Channel) {
	r.chMu.Lock()
	defer r.chMu.Unlock()
	r.channels[sessionID] = ch
}

func (r *Runner) clearChannel(sessionID string) {
	r.chMu.Lock()
	defer r.chMu.Unlock()
	delete(r.channels, sessionID)
}

// Run starts (or resumes) a session's conversation and returns a
// StreamResult the caller drains via Stream() or awaits via Wait().
func (r *Runner) Run(ctx context.Context, req RunRequest) (*StreamResult, error) {
	session, err := r.getOrCreateSession(req)
	if err != nil {
		return nil, fmt.Errorf("runner: get or create session: %w", err)
	}

	events := session.Events()
	resume, isResuming := eventlog.ComputeResumeContext(events)

	invocationID := model.NewInvocationID()
	var resumeCtx *eventlog.ResumeContext
	actual := fingerprint.Compute(r.root)
	if isResuming {
		invocationID = resume.InvocationID
		resumeCtx = &resume
		if expected := fingerprintOf(events, invocationID); expected != "" {
			if err := fingerprint.Validate(r.root, expected); err != nil {
				return nil, err
			}
		}
	}

	if req.Message != "" {
		session.Append(model.Event{
			ID:           model.NewEventID(),
			Type:         model.EventUser,
			Text:         req.Message,
			InvocationID: invocationID,
		})
	}

	ch := channel.New()
	r.setChannel(session.ID, ch)

	temp := session.TempStateFor(invocationID)
	for k, v := range req.TempOverrides {
		temp.Set(k, v)
	}

	_, err = ch.RegisterGenerator(invocationID, true, func(gctx context.Context, push func(model.Event)) (any, error) {
		defer session.ClearTempState(invocationID)
		defer r.clearChannel(session.ID)

		rc := &runnable.RunContext{
			Session:       session,
			Push:          push,
			Orchestration: orchestration.NewHandles(r.registry, session, invocationID, temp, ch, push),
			State:         r.stateFor(session, invocationID),
			TempState:     temp,
			InvocationID:  invocationID,
			AgentName:     r.root.Name(),
			Fingerprint:   actual,
			Version:       r.version,
			Resume:        resumeCtx,
			MaxSteps:      r.config.MaxSteps,
		}
		outcome, err := r.root.Run(gctx, rc)
		if err != nil {
			return nil, err
		}
		return outcome, nil
	})
	if err != nil {
		r.clearChannel(session.ID)
		return nil, fmt.Errorf("runner: register root invocation: %w", err)
	}

	r.log.Info("run started", zap.String("sessionId", session.ID), zap.String("invocationId", invocationID), zap.Bool("resuming", isResuming))
	return &StreamResult{ch: ch, ctx: ctx, session: session}, nil
}

// Abort cancels session's in-flight run, if any.
func (r *Runner) Abort(sessionID, reason string) {
	if ch := r.channelForID(sessionID); ch != nil {
		ch.Abort(reason)
	}
}

func (r *Runner) getOrCreateSession(req RunRequest) (*model.Session, error) {
	if req.SessionID != "" {
		session, err := r.sessions.GetSession(r.appName, req.SessionID)
		if err == nil {
			return session, nil
		}
		var notFound *sessions.ErrSessionNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return r.sessions.CreateSession(r.appName, sessions.CreateOptions{
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		PatientID:  req.PatientID,
		PracticeID: req.PracticeID,
	})
}

// fingerprintOf reads the fingerprint recorded on invocationID's own
// invocation_start event.
func fingerprintOf(events []model.Event, invocationID string) string {
	for _, e := range events {
		if e.Type == model.EventInvocationStart && e.InvocationID == invocationID {
			return e.Fingerprint
		}
	}
	return ""
}
