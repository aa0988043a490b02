// ABOUTME: Bounded exponential reconnect backoff policy for channel connections.
// ABOUTME: Delay doubles from the base per attempt, capped at the max delay and attempt budget.
package conn

import "time"

// BackoffPolicy configures reconnect scheduling after unexpected drops.
type BackoffPolicy struct {
	// BaseDelay is the delay before the first reconnect attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// MaxAttempts is the total reconnect budget before the channel is
	// considered permanently down.
	MaxAttempts int
}

// DefaultBackoffPolicy returns the production policy: 1s base, 30s cap,
// 5 attempts before giving up.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay computes the backoff for the given 0-indexed attempt:
// min(base * 2^attempt, max).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether the attempt counter has consumed the budget.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
