package runner

import (
	"context"
	"sync"

	"github.com/continuum-run/agentcore/pkg/agcerr"
	"github.com/continuum-run/agentcore/pkg/channel"
	"github.com/continuum-run/agentcore/pkg/eventlog"
	"github.com/continuum-run/agentcore/pkg/model"
	"github.com/continuum-run/agentcore/pkg/runnable"
)

// StreamResult is the handle Run returns: a single-consumption event
// stream plus a Wait() convenience that drains it for callers who only
// want the terminal result (spec §9's Future[RunResult] resolution).
type StreamResult struct {
	mu       sync.Mutex
	consumed bool

	ch      *channel.Channel
	ctx     context.Context
	session *model.Session
}

// Stream returns the consumer-side event channel. Calling it more than
// once (directly, or indirectly via Wait) returns agcerr.StreamConsumedError.
func (s *StreamResult) Stream() (<-chan channel.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return nil, &agcerr.StreamConsumedError{}
	}
	s.consumed = true
	return s.ch.Consume(s.ctx), nil
}

// Wait drains the stream and returns the terminal RunResult. It is a
// convenience over Stream for callers that don't need incremental events.
func (s *StreamResult) Wait() (RunResult, error) {
	stream, err := s.Stream()
	if err != nil {
		return RunResult{}, err
	}

	var result RunResult
	for item := range stream {
		if item.Result != nil {
			result = buildRunResult(s.session, *item.Result)
		}
	}
	return result, nil
}

func buildRunResult(session *model.Session, res channel.Result) RunResult {
	result := RunResult{Session: session}

	if res.Aborted {
		result.Status = model.StatusAborted
		result.Error = res.AbortReason
		return result
	}
	if res.ThrownError != nil {
		result.Status = model.StatusError
		result.Error = res.ThrownError.Error()
		return result
	}

	outcome, ok := res.MainResult.(runnable.RunOutcome)
	if !ok {
		result.Status = eventlog.Status(session.Events())
		return result
	}

	result.Output = outcome.Output
	if outcome.ReadOut.IsYielded {
		result.Status = model.StatusAwaitingInput
		result.PendingCallIDs = outcome.ReadOut.PendingCallIDs
		return result
	}

	result.Error = outcome.ReadOut.Error
	switch outcome.ReadOut.EndReason {
	case model.EndCompleted:
		result.Status = model.StatusCompleted
	case model.EndError:
		result.Status = model.StatusError
	case model.EndAborted:
		result.Status = model.StatusAborted
	case model.EndMaxSteps:
		result.Status = model.StatusMaxSteps
	default:
		result.Status = model.StatusActive
	}
	return result
}
