// Package retry runs an operation under an explicit attempt/delay policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often an operation is attempted and how long to wait
// between attempts. Delay receives the 1-based number of the attempt that
// just failed.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

// Linear waits base*attempt between attempts.
func Linear(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay: func(attempt int) time.Duration {
			return base * time.Duration(attempt)
		},
	}
}

// Exponential doubles the wait after every failed attempt, starting at base.
func Exponential(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay: func(attempt int) time.Duration {
			return base << (attempt - 1)
		},
	}
}

// policyBackOff adapts a Policy to backoff.BackOff.
type policyBackOff struct {
	policy  Policy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= b.policy.MaxAttempts {
		return backoff.Stop
	}
	if b.policy.Delay == nil {
		return 0
	}
	return b.policy.Delay(b.attempt)
}

func (b *policyBackOff) Reset() { b.attempt = 0 }

// Permanent marks err so Do returns it without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// Timer is the clock Do sleeps on between attempts.
type Timer = backoff.Timer

type options struct {
	timer   Timer
	onRetry func(attempt int, err error, wait time.Duration)
}

type Option func(*options)

// WithTimer replaces the wall-clock timer, mainly for tests.
func WithTimer(t Timer) Option {
	return func(o *options) { o.timer = t }
}

// OnRetry is called after each failed attempt that will be retried.
func OnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do calls op until it succeeds, returns a permanent error, the policy is
// exhausted or ctx is done. It returns the number of attempts made and the
// last error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error, opts ...Option) (int, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	attempts := 0
	operation := func() error {
		attempts++
		return op(ctx, attempts)
	}
	notify := func(err error, wait time.Duration) {
		if o.onRetry != nil {
			o.onRetry(attempts, err, wait)
		}
	}

	b := backoff.WithContext(&policyBackOff{policy: p}, ctx)
	var err error
	if o.timer != nil {
		err = backoff.RetryNotifyWithTimer(operation, b, notify, o.timer)
	} else {
		err = backoff.RetryNotify(operation, b, notify)
	}
	return attempts, err
}
