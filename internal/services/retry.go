package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultRetryBaseDelay = 5 * time.Second
	defaultRetryMaxDelay  = 60 * time.Second
)

// RetryAfterer is implemented by errors that carry a server-provided delay
// hint, such as an HTTP 429 with a Retry-After header.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// RetryPolicy bounds how often and how patiently a service call is retried.
// Only transient failures (see IsTransient) are retried; the delay doubles on
// every attempt starting from BaseDelay and never exceeds MaxDelay.
type RetryPolicy struct {
	Attempts    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
	// Sleeper replaces the timer-based wait. Tests use it to skip delays.
	Sleeper func(time.Duration)
}

// Retry runs fn until it succeeds, fails permanently, or the attempt budget is
// spent. Each call gets its own CallTimeout-bounded context.
func Retry[T any](ctx context.Context, policy RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := callWithTimeout(ctx, policy.CallTimeout, fn)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, err
		}
		if !IsTransient(err) || attempt == attempts {
			break
		}
		if err := policy.sleep(ctx, policy.delayFor(err, attempt)); err != nil {
			return zero, err
		}
	}
	if attempts > 1 && IsTransient(lastErr) {
		return zero, fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
	}
	return zero, lastErr
}

// RetryErr is Retry for calls that only return an error.
func RetryErr(ctx context.Context, policy RetryPolicy, op string, fn func(context.Context) error) error {
	_, err := Retry(ctx, policy, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

func (p RetryPolicy) attempts() int {
	if p.Attempts <= 0 {
		return 1
	}
	return p.Attempts
}

// BackoffDelay returns the wait before the attempt following attempt (1-based):
// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	base := p.BaseDelay
	if base < 0 {
		return 0
	}
	if base == 0 && p.MaxDelay == 0 {
		base = defaultRetryBaseDelay
	}
	if base == 0 {
		return 0
	}
	maxDelay := p.maxDelay()
	if attempt <= 0 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return p.capDelay(delay)
}

func (p RetryPolicy) delayFor(err error, attempt int) time.Duration {
	var hinted RetryAfterer
	if errors.As(err, &hinted) {
		if d := hinted.RetryAfter(); d > 0 {
			return p.capDelay(d)
		}
	}
	return p.BackoffDelay(attempt)
}

func (p RetryPolicy) maxDelay() time.Duration {
	if p.MaxDelay > 0 {
		return p.MaxDelay
	}
	return defaultRetryMaxDelay
}

func (p RetryPolicy) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if maxDelay := p.maxDelay(); delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (p RetryPolicy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.Sleeper != nil {
		p.Sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
