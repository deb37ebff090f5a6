// Package recovery holds the verification and retry primitives used when the
// screen does not respond the way an action expected.
package recovery

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
)

// ErrExhausted is returned when every attempt of a Retry came back false.
var ErrExhausted = core.NewExecutionError(core.ErrCategoryTransientUI, "retries_exhausted", "condition not met after all attempts")

var errNotYet = errors.New("condition not met")

// RetryPolicy bounds a Retry. The delay before attempt n (n >= 1) is
// InitialDelay * 2^(n-1); there is no delay after the last attempt.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration

	// Timer drives the waits between attempts. Nil uses a real timer.
	Timer backoff.Timer
}

// DefaultRetryPolicy matches the agent.retryAttempts and agent.retryDelay defaults.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries-1)), ctx)
}

// Retry calls fn until it reports true, the attempts run out, or ctx ends.
//
// An error from fn counts as a failed attempt, unless it is wrapped with
// backoff.Permanent, which aborts and is returned unwrapped. Running out of
// attempts returns ErrExhausted carrying the last error, if any.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (bool, error)) error {
	if p.MaxRetries <= 0 {
		return ErrExhausted
	}

	var (
		attempt   int
		permanent bool
	)
	op := func() error {
		attempt++
		ok, err := fn(ctx)
		if err != nil {
			var perm *backoff.PermanentError
			permanent = errors.As(err, &perm)
			return err
		}
		if !ok {
			return errNotYet
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Debug("attempt %d/%d failed (%v), retrying in %s", attempt, p.MaxRetries, err, next)
	}

	err := backoff.RetryNotifyWithTimer(op, p.backOff(ctx), notify, p.Timer)
	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errNotYet):
		return ErrExhausted
	default:
		return ErrExhausted.WithCause(err)
	}
}
