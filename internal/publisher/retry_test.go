package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

func TestRetryPolicy_SingleAttemptWhenUnset(t *testing.T) {
	calls := 0
	made, err := RetryPolicy{}.run(context.Background(), func(int) error {
		calls++
		return transient("x")
	}, nil)

	require.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, 1, made)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ReportsEachRetry(t *testing.T) {
	timer := newFakeTimer()
	var seen []int

	made, err := RetryPolicy{MaxAttempts: 4, Delay: time.Second, Timer: timer}.run(context.Background(),
		func(attempt int) error {
			if attempt < 4 {
				return transient("flaky")
			}
			return nil
		},
		func(attempt int, err error, wait time.Duration) {
			seen = append(seen, attempt)
			assert.Equal(t, time.Second, wait)
			assert.ErrorIs(t, err, domain.ErrTransport)
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 4, made)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestRetryPolicy_PermanentErrorUnwrapped(t *testing.T) {
	fatal := errors.New("fatal")
	_, err := RetryPolicy{MaxAttempts: 3, Timer: newFakeTimer()}.run(context.Background(),
		func(int) error { return fatal }, nil)

	assert.Equal(t, fatal, err)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(transient("x")))
	assert.False(t, Retryable(domain.ErrValidationRejected))
	assert.False(t, Retryable(nil))
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 10*time.Second, p.Delay)
}
