package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast(opts ...Option) *Retrier {
	return New(append([]Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond)}, opts...)...)
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	var retried []int
	err := fast(WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		retried = append(retried, attempt)
	})).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_GivesUpAndUnwraps(t *testing.T) {
	calls := 0
	err := fast(WithMaxAttempts(2)).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	})

	assert.Equal(t, 2, calls)
	assert.Same(t, errFlaky, err)
}

func TestDo_PermanentAndPlainErrorsStop(t *testing.T) {
	calls := 0
	err := fast().Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, errFlaky, err)

	calls = 0
	err = fast().Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errFlaky)
}

func TestDo_RetryIf(t *testing.T) {
	calls := 0
	r := fast(WithRetryIf(func(err error) bool { return errors.Is(err, errFlaky) }))
	_ = r.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fast().Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	n, err := DoWithData(context.Background(), fast(), func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestDelay_Capped(t *testing.T) {
	r := New(WithInitialDelay(time.Second), WithMaxDelay(2*time.Second), WithJitter(0))
	assert.Equal(t, time.Second, r.delay(1))
	assert.Equal(t, 2*time.Second, r.delay(2))
	assert.Equal(t, 2*time.Second, r.delay(5))
	assert.Equal(t, 2, CacheRetrier(nil).Config().MaxAttempts)
}
