// Package retry runs an operation a bounded number of times with a wait
// between attempts.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy selects how the wait between attempts evolves.
type Strategy string

const (
	// Constant waits Policy.Delay between every attempt.
	Constant Strategy = "constant"
	// Exponential doubles the wait after each attempt and adds jitter in
	// [0, Delay/2). The wait never drops below Policy.Delay.
	Exponential Strategy = "exponential"
)

// ParseStrategy maps a setting value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Constant, Exponential:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown retry strategy %q", s)
	}
}

// Policy bounds an operation to Attempts tries.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Strategy Strategy
	// MaxDelay caps exponential growth. Zero means 30s.
	MaxDelay time.Duration
}

// NotifyFunc is called after a failed attempt that will be retried.
type NotifyFunc func(attempt int, err error, wait time.Duration)

// Do calls op until it succeeds or the policy is exhausted. The error of the
// last attempt is returned unchanged. Cancelling ctx stops waiting and
// returns ctx.Err().
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify NotifyFunc) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(attempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op(ctx)
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	})
}

func (p Policy) backOff() backoff.BackOff {
	if p.Strategy == Exponential && p.Delay > 0 {
		maxDelay := p.MaxDelay
		if maxDelay <= 0 {
			maxDelay = 30 * time.Second
		}
		return &exponentialBackOff{base: p.Delay, max: maxDelay}
	}
	return backoff.NewConstantBackOff(p.Delay)
}

type exponentialBackOff struct {
	base time.Duration
	max  time.Duration
	n    int
}

func (e *exponentialBackOff) NextBackOff() time.Duration {
	d := e.base
	for i := 0; i < e.n && d < e.max; i++ {
		d *= 2
	}
	if d > e.max {
		d = e.max
	}
	e.n++
	if half := int64(e.base / 2); half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

func (e *exponentialBackOff) Reset() {
	e.n = 0
}
