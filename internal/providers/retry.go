package providers

import (
	"context"
	"fmt"
	"time"
)

// Default retry settings for provider calls.
const (
	DefaultAttempts  = 3
	DefaultTimeout   = 60 * time.Second
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 10 * time.Second
)

// Policy bounds a provider call: per-attempt timeout plus exponential backoff.
type Policy struct {
	Attempts  int
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy returns the standard policy (3 attempts, 500ms doubling backoff).
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  DefaultAttempts,
		Timeout:   DefaultTimeout,
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// AttemptFunc observes each failed attempt. last is true when no retry follows.
type AttemptFunc func(attempt int, err error, last bool)

// Call runs fn under the policy. Each attempt gets its own timeout; retryable
// failures are retried with exponential backoff until attempts run out or the
// parent context is done. The error of the final attempt is returned.
func Call[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error), onFailure AttemptFunc) (T, error) {
	p = p.normalized()
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := callOnce(ctx, p.Timeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		last := attempt == p.Attempts || !Retryable(err)
		if onFailure != nil {
			onFailure(attempt, err, last)
		}
		if last {
			break
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func callOnce[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(callCtx)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return result, fmt.Errorf("call timed out after %s: %w", timeout, err)
	}
	return result, err
}
