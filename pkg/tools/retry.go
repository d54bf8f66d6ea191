package tools

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ExecuteWithPolicy runs fn, retrying on error with exponential backoff and
// jitter per policy, and stopping early if ctx is done — the "abort-aware"
// requirement from spec §4.4 point 3. A ctx cancellation is never retried;
// it is returned immediately as a permanent failure.
func ExecuteWithPolicy(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (any, error)) (any, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval

	maxTries := policy.MaxAttempts
	if maxTries <= 0 {
		maxTries = 1
	}

	return backoff.Retry(ctx, func() (any, error) {
		result, err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxTries)))
}

// RunWithTimeout bounds fn by timeout, deriving a child context from ctx so
// an outer abort still propagates.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	child, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(child)
}
