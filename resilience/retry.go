package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/relloyd/odsync/etlerrors"
)

// RetryPolicy describes how an operation is retried.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	// Retryable decides whether a failed attempt may be retried.
	// Defaults to etlerrors.Classify(err) == etlerrors.OutcomeRetryable.
	Retryable func(error) bool
}

// DefaultExtractPolicy is used for source reads: 3 attempts, 5s initial delay doubling each time.
var DefaultExtractPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 5 * time.Second,
	Factor:       2,
	MaxDelay:     5 * time.Minute,
}

// RetryNotify is called before sleeping between attempts.
type RetryNotify func(attempt int, err error, delay time.Duration)

type retryOptions struct {
	notify RetryNotify
	timer  backoff.Timer
}

type RetryOption func(o *retryOptions)

// WithNotify registers fn to observe each failed attempt and the delay before the next one.
func WithNotify(fn RetryNotify) RetryOption {
	return func(o *retryOptions) { o.notify = fn }
}

// WithTimer replaces the timer used to sleep between attempts.
func WithTimer(t backoff.Timer) RetryOption {
	return func(o *retryOptions) { o.timer = t }
}

// newBackOff returns an exponential backoff without jitter whose delays are min(delay, MaxDelay).
func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = p.Factor
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = p.InitialDelay
	}
	b.MaxElapsedTime = 0 // bounded by attempts, not elapsed time
	b.Reset()
	return b
}

// Retry runs op until it succeeds, fails with a non-retryable error or MaxAttempts is reached.
// The error of the last attempt is returned unchanged.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error, opts ...RetryOption) error {
	o := &retryOptions{}
	for _, fn := range opts {
		fn(o)
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(err error) bool {
			return etlerrors.Classify(err) == etlerrors.OutcomeRetryable
		}
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(maxAttempts-1)), ctx)
	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		if o.notify != nil {
			o.notify(attempt, err, d)
		}
	}
	return backoff.RetryNotifyWithTimer(operation, b, notify, o.timer)
}
