// Package retry implements exponential backoff with jitter for the
// network-facing adapters (source fetch, verification polling).
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures a retry loop.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         bool
}

// DefaultPolicy is the source-fetch retry policy of spec.md §4.1: "up to 3
// attempts, exponential backoff with jitter".
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Jitter:         true,
	}
}

// Terminal marks an error as non-retryable (e.g. a 404).
type Terminal struct{ Err error }

func (t *Terminal) Error() string { return t.Err.Error() }
func (t *Terminal) Unwrap() error { return t.Err }

// Do runs fn up to p.MaxAttempts times, backing off exponentially between
// attempts. It stops immediately if fn returns a *Terminal error or ctx is
// cancelled.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := backoff
			if p.Jitter {
				wait += time.Duration(rand.Int63n(int64(backoff) / 2 + 1))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		if term, ok := err.(*Terminal); ok {
			return term.Err
		}
		lastErr = err
	}

	return lastErr
}

// Backoff computes the exponential-backoff-with-cap sequence used by the
// verification poller (spec.md §4.6: "1s, 2s, 4s, 8s ... capped at 30s").
func Backoff(attempt int, initial, cap time.Duration) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
