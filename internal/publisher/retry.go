package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// RetryPolicy bounds how often a venue attempt is repeated. MaxAttempts counts
// every attempt including the first; values below 1 mean a single attempt.
// Timer is the clock used to wait Delay between attempts; nil uses a real
// timer.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Timer       backoff.Timer
}

// DefaultRetryPolicy is three attempts ten seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       10 * time.Second,
	}
}

// Retryable reports whether err warrants another venue attempt.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrTransport)
}

// run calls op until it succeeds, fails with a non-retryable error, the
// attempts are exhausted or ctx ends. It returns the number of attempts made
// and the last error.
func (p RetryPolicy) run(
	ctx context.Context,
	op func(attempt int) error,
	onRetry func(attempt int, err error, wait time.Duration),
) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)),
		ctx,
	)

	made := 0
	operation := func() error {
		made++
		err := op(made)
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if onRetry != nil {
			onRetry(made, err, wait)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, b, notify, p.Timer)
	return made, err
}
