// Package channel implements the multi-producer, single-consumer event
// transport from spec §4.2: any number of named producers push events or
// run as generators; exactly one is "main" and its return value becomes the
// channel's main result; abort and completion are both observable at the
// single consumer.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/continuum-run/agentcore/pkg/logging"
	"github.com/continuum-run/agentcore/pkg/model"
	"go.uber.org/zap"
)

// ErrClosed is returned by RegisterGenerator/RegisterProducer once the
// channel has already aborted or closed.
var ErrClosed = errors.New("channel closed")

// Result is the terminal value the consumer receives once the channel
// closes.
type Result struct {
	MainResult  any
	Aborted     bool
	AbortReason string
	ThrownError error
}

// Item is one value read off the consumer side: either an Event, or (on
// the final read) a Result.
type Item struct {
	Event  *model.Event
	Result *Result
}

// GeneratorFunc is a cooperative producer: it may call push any number of
// times and eventually returns its own result (reported as Channel's main
// result if it was registered as main) or an error.
type GeneratorFunc func(ctx context.Context, push func(model.Event)) (any, error)

// Future is returned by RegisterGenerator so callers can await that
// specific producer's outcome independent of the channel's overall result.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the generator this future belongs to has returned.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type earlyTermination struct {
	aborted     bool
	abortReason string
	thrownErr   error
}

// Channel is the in-memory implementation of the event transport. Every
// termination path — all producers draining naturally, an abort, a main
// producer throwing, or a main producer yielding — funnels through
// triggerEarly; drain() is the sole reader of that signal and therefore
// the only place the terminal Result is built, so there is never more than
// one writer of it.
type Channel struct {
	log *zap.Logger

	mu         sync.Mutex
	terminated bool
	mainResult any

	items chan Item
	early chan earlyTermination
	done  chan struct{} // closed the instant any termination is triggered

	earlyOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs an empty, open channel.
func New() *Channel {
	c := &Channel{
		log:   logging.Named("channel"),
		items: make(chan Item, 64),
		early: make(chan earlyTermination, 1),
		done:  make(chan struct{}),
	}
	go c.closeWhenDrained()
	return c
}

func (c *Channel) closeWhenDrained() {
	c.wg.Wait()
	c.triggerEarly(earlyTermination{})
}

func (c *Channel) triggerEarly(e earlyTermination) {
	c.earlyOnce.Do(func() {
		c.mu.Lock()
		c.terminated = true
		c.mu.Unlock()
		close(c.done)
		c.early <- e
	})
}

func (c *Channel) isTerminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

func (c *Channel) pushEvent(e model.Event) {
	if c.isTerminated() {
		return
	}
	select {
	case c.items <- Item{Event: &e}:
	case <-c.done:
	}
}

// RegisterGenerator attaches an async producer. Its yielded values become
// channel events; its return value is reported as the channel's
// MainResult if isMain, and always to the returned Future. The context
// passed to fn is cancelled as soon as the channel terminates (abort,
// cleanup, a main yield or a main error). Fails immediately once the
// channel has already aborted or closed.
func (c *Channel) RegisterGenerator(id string, isMain bool, fn GeneratorFunc) (*Future, error) {
	if c.isTerminated() {
		return nil, ErrClosed
	}

	c.wg.Add(1)
	future := &Future{done: make(chan struct{})}

	go func() {
		defer c.wg.Done()
		defer close(future.done)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-c.done:
				cancel()
			case <-ctx.Done():
			}
		}()

		result, err := fn(ctx, c.pushEvent)
		future.result, future.err = result, err

		if err != nil {
			if isMain {
				c.triggerEarly(earlyTermination{thrownErr: err})
			} else {
				c.log.Warn("non-main producer errored; dropping", zap.String("producer", id), zap.Error(err))
			}
			return
		}

		if isMain {
			c.mu.Lock()
			c.mainResult = result
			c.mu.Unlock()
		}
	}()

	return future, nil
}

// ProducerHandle is the lifecycle handle a direct (non-generator) producer
// uses to push events and eventually complete.
type ProducerHandle struct {
	ch     *Channel
	isMain bool
}

// Push injects an event directly, bypassing the generator abstraction.
func (p *ProducerHandle) Push(e model.Event) {
	p.ch.pushEvent(e)
}

// Complete marks this producer done. result is recorded as
// Channel.Result().MainResult only if the handle was registered as main.
func (p *ProducerHandle) Complete(result any) {
	if p.isMain {
		p.ch.mu.Lock()
		p.ch.mainResult = result
		p.ch.mu.Unlock()
	}
	p.ch.wg.Done()
}

// RegisterProducer opens a direct-push producer slot. Fails immediately
// once the channel has already aborted or closed.
func (c *Channel) RegisterProducer(isMain bool) (*ProducerHandle, error) {
	if c.isTerminated() {
		return nil, ErrClosed
	}
	c.wg.Add(1)
	return &ProducerHandle{ch: c, isMain: isMain}, nil
}

// SignalMainYielded closes the channel immediately, as if every producer
// had completed, because the main producer's result represents a yield.
// Domain drivers call this once they know their terminal outcome is a
// yield; the channel itself stays ignorant of what "yielded" means for any
// particular domain result type.
func (c *Channel) SignalMainYielded() {
	c.triggerEarly(earlyTermination{})
}

// Abort marks the channel aborted. The consumer observes termination at
// the next poll, with at most one further already-queued event delivered
// first.
func (c *Channel) Abort(reason string) {
	c.triggerEarly(earlyTermination{aborted: true, abortReason: reason})
}

// Cleanup releases all producers and drops any queued items.
func (c *Channel) Cleanup() {
	c.triggerEarly(earlyTermination{})
	for {
		select {
		case <-c.items:
		default:
			return
		}
	}
}

// Consume returns the consumer-side stream. Call it only once per channel;
// concurrent or repeated consumption is not supported (the Runner layer,
// package runner, enforces single consumption with its own error).
func (c *Channel) Consume(ctx context.Context) <-chan Item {
	out := make(chan Item)
	go c.drain(ctx, out)
	return out
}

func (c *Channel) drain(ctx context.Context, out chan<- Item) {
	defer close(out)
	for {
		select {
		case item := <-c.items:
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		case early := <-c.early:
			if early.aborted {
				// Deliver at most one more already-queued event before
				// the terminal result; abort does not wait for the rest
				// of the backlog (testable property 7).
				select {
				case item := <-c.items:
					out <- item
				default:
				}
			} else {
				// Every other termination path (drained, main yielded,
				// main producer threw) has already stopped accepting new
				// pushes, so whatever is left in c.items is the full,
				// final backlog: drain it before the terminal result so
				// the consumer observes every event exactly once
				// (testable property 6).
				draining := true
				for draining {
					select {
					case item := <-c.items:
						out <- item
					default:
						draining = false
					}
				}
			}

			c.mu.Lock()
			result := Result{
				MainResult:  c.mainResult,
				Aborted:     early.aborted,
				AbortReason: early.abortReason,
				ThrownError: early.thrownErr,
			}
			c.mu.Unlock()
			out <- Item{Result: &result}
			return
		case <-ctx.Done():
			return
		}
	}
}
