// Package retry runs an operation under a bounded, data-driven retry policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy selects how the delay grows between attempts.
type Strategy string

const (
	// Fixed waits Delay between every attempt.
	Fixed Strategy = "fixed"
	// Linear waits Delay, 2*Delay, 3*Delay, ...
	Linear Strategy = "linear"
)

// Policy bounds a retry loop. Attempts counts the first try.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Strategy Strategy
}

// Validate reports whether the policy can be executed.
func (p Policy) Validate() error {
	if p.Attempts < 1 {
		return fmt.Errorf("retry: attempts must be >= 1, got %d", p.Attempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry: delay must not be negative, got %s", p.Delay)
	}
	switch p.Strategy {
	case "", Fixed, Linear:
		return nil
	default:
		return fmt.Errorf("retry: unknown strategy %q", p.Strategy)
	}
}

func (p Policy) backOff() backoff.BackOff {
	var b backoff.BackOff
	if p.Strategy == Linear {
		b = &linearBackOff{step: p.Delay}
	} else {
		b = backoff.NewConstantBackOff(p.Delay)
	}
	return backoff.WithMaxRetries(b, uint64(p.Attempts-1))
}

// NotifyFunc observes a failed attempt before the next one is scheduled.
type NotifyFunc func(attempt int, err error, next time.Duration)

// Do calls op until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is done. It returns the last error seen (or ctx.Err()).
// Wrap an error with Permanent to stop immediately.
func Do(ctx context.Context, p Policy, op func(attempt int) error, notify NotifyFunc) error {
	if err := p.Validate(); err != nil {
		return err
	}

	attempt := 0
	operation := func() error {
		attempt++
		return op(attempt)
	}

	var onErr backoff.Notify
	if notify != nil {
		onErr = func(err error, next time.Duration) {
			notify(attempt, err, next)
		}
	}

	return backoff.RetryNotify(operation, backoff.WithContext(p.backOff(), ctx), onErr)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
