// Package retry provides a bounded retry combinator on top of cenkalti/backoff.
//
// Every retry loop in the terminal goes through Do so the attempt bound and the
// wait policy are explicit values rather than properties of a hand-written loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted matches any *ExhaustedError via errors.Is.
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one. Values below 1 mean 1.
	MaxAttempts int

	// InitialInterval is the wait before the second attempt. Zero retries immediately.
	InitialInterval time.Duration

	// MaxInterval caps exponential growth. Zero keeps the backoff library default.
	MaxInterval time.Duration
}

// Immediate returns a policy without waits between attempts.
func Immediate(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backOff() backoff.BackOff {
	if p.InitialInterval <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	// The attempt count is the only bound.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Stop marks err as final: Do returns it immediately without further attempts.
func Stop(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns an error wrapped with Stop, the context
// is done, or MaxAttempts calls have been made. attempt starts at 1.
//
// When the budget runs out the last error is returned inside an *ExhaustedError.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	maxAttempts := p.attempts()

	var (
		attempt int
		stopped bool
	)

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(maxAttempts-1)), ctx)

	res, err := backoff.RetryWithData(func() (T, error) {
		attempt++
		v, err := op(ctx, attempt)
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			stopped = true
		}
		return v, err
	}, b)

	switch {
	case err == nil:
		return res, nil
	case stopped:
		return res, err
	case ctx.Err() != nil:
		return res, ctx.Err()
	default:
		return res, &ExhaustedError{Attempts: attempt, Last: err}
	}
}
