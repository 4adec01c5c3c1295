package runner

import (
	"math/rand"
	"time"
)

// BackoffPolicy configures the exponential backoff with jitter applied
// between retry attempts, grounded in the teacher's computeBackoff.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultBackoffPolicy returns the spec's stated defaults.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// computeBackoff returns min(min(base*2^attempt, maxDelay) + jitter(0, base), maxDelay).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxDelay || delay < 0 {
		delay = maxDelay
	}
	jitter := time.Duration(rng.Int63n(int64(base) + 1))
	total := delay + jitter
	if total > maxDelay {
		total = maxDelay
	}
	return total
}
