package resilience

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy tunes the retry stage. The first attempt is not a retry:
// MaxRetries=3 allows up to four attempts in total.
type RetryPolicy struct {
	MaxRetries int `yaml:"max_retries"`
	// Delay is the fixed pause between attempts.
	Delay time.Duration `yaml:"delay"`
	// Jitter randomises each pause by up to +/- Jitter.
	Jitter time.Duration `yaml:"jitter"`
	// MaxDuration bounds the whole retry loop; zero means unbounded.
	MaxDuration time.Duration `yaml:"max_duration"`
}

func (p RetryPolicy) backoff() retry.Backoff {
	delay := p.Delay
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	})
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	b = retry.WithMaxRetries(uint64(max(p.MaxRetries, 0)), b)
	if p.MaxDuration > 0 {
		b = retry.WithMaxDuration(p.MaxDuration, b)
	}
	return b
}

// Do calls fn until it succeeds, returns an error shouldRetry rejects, or the
// policy runs out of attempts or time. The pause between attempts suspends
// the caller on a timer and honours ctx cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error, shouldRetry func(error) bool) error {
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && shouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
