// Package invocation implements the invocation boundary wrapper (spec
// §4.3): the envelope that turns a child runnable's execution into a
// paired invocation_start/invocation_resume ... invocation_end/
// invocation_yield bracket in the session's event log, independent of any
// particular Runnable implementation so package runnable can depend on
// this package without a cycle.
package invocation

import (
	"context"
	"fmt"

	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/logging"
	"github.com/continuum-run/agentcore/pkg/model"
	"go.uber.org/zap"
)

// ReadOut is what a child execution reports back to the boundary once it
// returns, abstracted away from any concrete Runnable type per spec §4.3's
// "parameterized by a read-out" contract.
type ReadOut struct {
	Iterations     int
	EndReason      model.EndReason
	Error          string
	IsYielded      bool
	YieldIndex     int
	PendingCallIDs []string
	AwaitingInput  bool
	HandoffTarget  string
}

// Options configures one invocation boundary.
type Options struct {
	InvocationID       string
	ParentInvocationID string
	AgentName          string
	Kind               model.InvocationKind
	HandoffOrigin      model.HandoffOrigin

	// Fingerprint and Version are only meaningful (and only emitted) on the
	// root invocation_start.
	Fingerprint string
	Version     string

	// Resume, if non-nil, means this boundary is re-entering a suspended
	// invocation rather than starting fresh: emit invocation_resume instead
	// of invocation_start.
	Resume *eventlog.ResumeContext

	// Managed suppresses envelope emission entirely; the caller already
	// owns the envelope (spec §4.3 point 5 — used for sub-runner
	// invocations whose parent boundary already wraps them).
	Managed bool
}

// ChildFunc is the child generator a boundary wraps: it pushes events as it
// runs and returns its outcome read-out.
type ChildFunc func(ctx context.Context, push func(model.Event)) (ReadOut, error)

// Run executes child inside the envelope described by opts, appending the
// opening and closing events to session and forwarding every event the
// child pushes via push.
func Run(ctx context.Context, session *model.Session, opts Options, push func(model.Event), child ChildFunc) (ReadOut, error) {
	log := logging.Named("invocation").With(zap.String("invocationId", opts.InvocationID), zap.String("kind", string(opts.Kind)))

	if !opts.Managed {
		if opts.Resume != nil {
			session.Append(model.Event{
				ID:           model.NewEventID(),
				Type:         model.EventInvocationResume,
				InvocationID: opts.InvocationID,
				YieldIndex:   opts.Resume.YieldIndex,
			})
		} else {
			session.Append(model.Event{
				ID:                 model.NewEventID(),
				Type:               model.EventInvocationStart,
				InvocationID:       opts.InvocationID,
				ParentInvocationID: opts.ParentInvocationID,
				AgentName:          opts.AgentName,
				Kind:               opts.Kind,
				HandoffOrigin:      opts.HandoffOrigin,
				Fingerprint:        opts.Fingerprint,
				Version:            opts.Version,
			})
		}
	}

	readOut, err := child(ctx, push)

	if err != nil {
		log.Error("invocation failed", zap.Error(err))
		if !opts.Managed {
			session.Append(model.Event{
				ID:           model.NewEventID(),
				Type:         model.EventInvocationEnd,
				InvocationID: opts.InvocationID,
				Reason:       model.EndError,
				EndError:     err.Error(),
			})
		}
		return readOut, fmt.Errorf("invocation %s: %w", opts.InvocationID, err)
	}

	if opts.Managed {
		return readOut, nil
	}

	if readOut.IsYielded {
		session.Append(model.Event{
			ID:             model.NewEventID(),
			Type:           model.EventInvocationYield,
			InvocationID:   opts.InvocationID,
			YieldIndex:     readOut.YieldIndex,
			PendingCallIDs: readOut.PendingCallIDs,
			AwaitingInput:  readOut.AwaitingInput,
		})
		return readOut, nil
	}

	session.Append(model.Event{
		ID:            model.NewEventID(),
		Type:          model.EventInvocationEnd,
		InvocationID:  opts.InvocationID,
		Reason:        readOut.EndReason,
		Iterations:    readOut.Iterations,
		EndError:      readOut.Error,
		HandoffTarget: readOut.HandoffTarget,
	})
	return readOut, nil
}
