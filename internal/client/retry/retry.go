// Package retry holds the two timing primitives of the session core: a
// timeout race around a single call and a bounded retry combinator with
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	goretry "github.com/sethvargo/go-retry"
)

// Policy bounds a retry loop. MaxRetries counts retries after the first
// attempt, so MaxRetries = 0 runs fn once.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Factor     float64
}

// Delay returns the pause before retry number attempt (0-based):
// BaseDelay * Factor^attempt.
func (p Policy) Delay(attempt int) time.Duration {
	f := p.Factor
	if f <= 0 {
		f = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(f, float64(attempt)))
}

// Budget is the total time spent sleeping if every retry is used.
func (p Policy) Budget() time.Duration {
	var total time.Duration
	for i := 0; i < p.MaxRetries; i++ {
		total += p.Delay(i)
	}
	return total
}

func (p Policy) backoff() goretry.Backoff {
	attempt := 0
	b := goretry.BackoffFunc(func() (time.Duration, bool) {
		d := p.Delay(attempt)
		attempt++
		return d, false
	})
	max := p.MaxRetries
	if max < 0 {
		max = 0
	}
	return goretry.WithMaxRetries(uint64(max), b)
}

// Retryable marks err as worth another attempt. Errors not marked end the
// loop immediately.
func Retryable(err error) error {
	return goretry.RetryableError(err)
}

// Do runs fn until it succeeds, returns an unmarked error, the retries are
// exhausted or ctx is done. attempt starts at 0. The last error is returned
// unwrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	return goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		n := attempt
		attempt++
		return fn(ctx, n)
	})
}

type result[T any] struct {
	v   T
	err error
}

// WithTimeout races fn against a timer of length d. Whichever settles
// first wins; a call that loses keeps running against a cancelled context
// and its result is discarded. Timer expiry yields common.ErrTimeout.
// A panic inside fn is returned as an error.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				ch <- result[T]{v: zero, err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && !errors.Is(r.err, common.ErrTimeout) {
			r.err = fmt.Errorf("%w: %w", common.ErrTimeout, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", common.ErrTimeout, d)
		}
		return zero, ctx.Err()
	}
}

// Run is WithTimeout for calls without a result.
func Run(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	_, err := WithTimeout(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
