package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: 800 * time.Millisecond, Factor: 1.5}

	assert.Equal(t, 800*time.Millisecond, p.Delay(0))
	assert.Equal(t, 1200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 1800*time.Millisecond, p.Delay(2))
	assert.Equal(t, 3800*time.Millisecond, p.Budget())

	flat := Policy{BaseDelay: time.Second}
	assert.Equal(t, time.Second, flat.Delay(5))
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Factor: 1.5}

	var attempts []int
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return Retryable(errors.New("not yet"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestDo_StopsAtMaxRetries(t *testing.T) {
	for _, max := range []int{0, 1, 3} {
		p := Policy{MaxRetries: max, BaseDelay: time.Millisecond, Factor: 1.5}
		calls := 0
		sentinel := errors.New("still down")

		err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
			calls++
			return Retryable(sentinel)
		})
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, max+1, calls, "max retries %d", max)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	p := Policy{MaxRetries: 5, BaseDelay: time.Millisecond}
	calls := 0

	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		return common.ErrMalformedCredential
	})
	require.ErrorIs(t, err, common.ErrMalformedCredential)
	assert.Equal(t, 1, calls)
}

func TestDo_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	p := Policy{MaxRetries: 10, BaseDelay: time.Second}
	start := time.Now()
	err := Do(ctx, p, func(ctx context.Context, attempt int) error {
		return Retryable(errors.New("down"))
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWithTimeout_FastCallWins(t *testing.T) {
	v, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestWithTimeout_TimerWins(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (string, error) {
		// ignores ctx on purpose, like an SDK call without cancellation
		<-release
		return "late", nil
	})
	require.ErrorIs(t, err, common.ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWithTimeout_DeadlineErrorIsTimeout(t *testing.T) {
	_, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	})
	require.ErrorIs(t, err, common.ErrTimeout)
	assert.Equal(t, common.KindTimeout, common.Classify(err))
}

func TestWithTimeout_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, common.ErrTimeout)
}

func TestWithTimeout_RecoversPanic(t *testing.T) {
	_, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		panic("sdk exploded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sdk exploded")
}

func TestRun(t *testing.T) {
	require.NoError(t, Run(context.Background(), time.Second, func(ctx context.Context) error { return nil }))

	sentinel := errors.New("x")
	require.ErrorIs(t, Run(context.Background(), time.Second, func(ctx context.Context) error { return sentinel }), sentinel)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
