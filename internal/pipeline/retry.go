package pipeline

import (
	"time"
)

// Default backoff bounds for the retry policy
const (
	// DefaultBaseBackoff is the delay before the first retry
	DefaultBaseBackoff = time.Second
	// DefaultMaxBackoff caps the exponential growth
	DefaultMaxBackoff = 5 * time.Minute
)

// RetryPolicy decides whether a failed stage execution is retried and how
// long to wait before the retry. Terminal errors short-circuit directly to
// the failure handler regardless of remaining attempts.
type RetryPolicy struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// ShouldRetry reports whether the stage should be requeued after the given
// attempt failed with err. Retrying a deterministic failure wastes budget
// without changing the outcome, so terminal errors are never retried.
func (p RetryPolicy) ShouldRetry(stage StageDescriptor, attempt int, err error) bool {
	if IsTerminal(err) {
		return false
	}
	return attempt < stage.Budget()
}

// Backoff returns the delay before redelivering attempt+1. The delay doubles
// with every attempt, bounded by MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	max := p.MaxBackoff
	if max <= 0 {
		max = DefaultMaxBackoff
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Budget returns the stage's maximum attempt count, defaulting when the
// descriptor did not declare one.
func (s StageDescriptor) Budget() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}
