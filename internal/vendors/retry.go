package vendors

import (
	"context"
	"time"
)

// RetryPolicy is a stateless retry description: attempts and a linearly
// increasing backoff (attempt n waits n * Backoff). A zero policy means a
// single attempt. Policies are plain values so concurrent calls on the
// same adapter share no hidden state.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// NoRetry fails on the first rejection.
var NoRetry = RetryPolicy{Attempts: 1}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * p.Backoff):
		}
	}
	return err
}
