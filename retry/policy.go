// Package retry provides a configurable retry policy for remote calls.
//
// Information Hiding:
// - Backoff schedule construction hidden behind Strategy
// - Attempt counting and early-stop classification hidden
// - Context cancellation handled once, here, rather than in every caller

package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy selects the wait schedule between attempts.
type Strategy string

const (
	// StrategyNone retries immediately.
	StrategyNone Strategy = "none"
	// StrategyConstant waits InitialInterval between attempts.
	StrategyConstant Strategy = "constant"
	// StrategyExponential doubles the wait from InitialInterval up to MaxInterval.
	StrategyExponential Strategy = "exponential"
)

// DefaultMaxAttempts is the attempt ceiling used when a Policy leaves it unset.
const DefaultMaxAttempts = 3

// ParseStrategy parses a strategy name (case-insensitive). Empty means none.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return StrategyNone, nil
	case "constant", "fixed":
		return StrategyConstant, nil
	case "exponential", "exp":
		return StrategyExponential, nil
	default:
		return "", fmt.Errorf("unknown retry strategy: %q", s)
	}
}

// NotifyFunc is called after every failed attempt that will be retried.
type NotifyFunc func(attempt int, err error, wait time.Duration)

// Policy describes how many times an operation runs and how long to wait between runs.
// The zero value is usable: three attempts, no delay.
type Policy struct {
	MaxAttempts     int
	Strategy        Strategy
	InitialInterval time.Duration
	MaxInterval     time.Duration

	notify NotifyFunc
}

// DefaultPolicy returns three attempts with no backoff delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Strategy:    StrategyNone,
	}
}

// WithNotify returns a copy of the policy that reports failed attempts to fn.
func (p Policy) WithNotify(fn NotifyFunc) Policy {
	p.notify = fn
	return p
}

// Attempts returns the effective attempt ceiling.
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) initialInterval() time.Duration {
	if p.InitialInterval <= 0 {
		return 500 * time.Millisecond
	}
	return p.InitialInterval
}

func (p Policy) backOff() backoff.BackOff {
	switch p.Strategy {
	case StrategyConstant:
		return backoff.NewConstantBackOff(p.initialInterval())
	case StrategyExponential:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = p.initialInterval()
		b.RandomizationFactor = 0
		b.Multiplier = 2
		if p.MaxInterval > 0 {
			b.MaxInterval = p.MaxInterval
		}
		// Attempts bound the loop, not elapsed time.
		b.MaxElapsedTime = 0
		return b
	default:
		return &backoff.ZeroBackOff{}
	}
}

// Permanent marks err as non-retryable. Do returns the wrapped error immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, the context ends, or the
// attempt ceiling is reached. attempt is 1-based. It returns the number of attempts made
// and the last error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.Attempts()
	attempt := 0

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		return op(ctx, attempt)
	}

	var notify backoff.Notify
	if p.notify != nil {
		notify = func(err error, wait time.Duration) {
			p.notify(attempt, err, wait)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(maxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	return attempt, err
}
