package base

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

// RetryPolicy defines retry behavior with exponential backoff and jitter.
// Remote API reads are retried by the HTTP transport; this policy covers
// destination side effects such as object uploads.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewRetryPolicy creates a new retry policy with exponential backoff
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(3, time.Second)
}

// Execute runs fn, retrying every error.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, func(error) bool { return true })
}

// ExecuteWithCondition runs fn, retrying only errors for which shouldRetry
// returns true. Non-retryable errors are returned unchanged.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	attempts := 0
	permanent := false

	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if err != nil && !shouldRetry(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(rp.exponential(), uint64(rp.MaxAttempts-1)), ctx))

	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case ctx.Err() != nil:
		return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled").WithDetail("attempts", attempts)
	}

	errType := errors.TypeOf(err)
	if errType == "" {
		errType = errors.ErrorTypeInternal
	}
	return errors.Wrap(err, errType, "all attempts failed").WithDetail("attempts", attempts)
}

// GetDelay returns the delay before retry number attempt (zero based).
func (rp *RetryPolicy) GetDelay(attempt int) time.Duration {
	b := rp.exponential()
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (rp *RetryPolicy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rp.InitialDelay
	b.Multiplier = rp.Multiplier
	b.RandomizationFactor = rp.RandomizeFactor
	b.MaxInterval = rp.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
