package retry

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Policy is a bounded exponential backoff policy.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Retryable decides whether err deserves another attempt. Nil retries every error.
	Retryable func(err error) bool
}

// ErrExhausted matches errors returned after a policy used up its attempts.
// Do never retries such an error again, so nested retry layers do not multiply attempts.
var ErrExhausted = errors.New("retry attempts exhausted")

type exhaustedError struct {
	err error
}

func (e *exhaustedError) Error() string   { return e.err.Error() }
func (e *exhaustedError) Unwrap() []error { return []error{e.err, ErrExhausted} }

// Exhausted marks err as already retried. It still matches err with errors.Is.
func Exhausted(err error) error {
	if err == nil || errors.Is(err, ErrExhausted) {
		return err
	}
	return &exhaustedError{err: err}
}

// Default retries three times starting at 200ms.
func Default() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  2 * time.Second,
	}
}

// Do runs fn until it succeeds, the error is not retryable, attempts run out, or ctx is done.
// The last error is returned, marked with ErrExhausted when attempts ran out.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, ErrExhausted) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return goerr.Wrap(ctx.Err(), "retry aborted", goerr.V("attempt", i+1), goerr.V("last_error", err.Error()))
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return Exhausted(err)
}
