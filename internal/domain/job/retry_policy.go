package job

import (
	"errors"
	"time"
)

// ErrInvalidBaseDelay indicates a non-positive base delay was configured.
var ErrInvalidBaseDelay = errors.New("base delay must be positive")

// ErrInvalidMaxAttempts indicates a non-positive max attempts was configured.
var ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

// RetryPolicy is a pure, deterministic exponential-backoff policy: no
// jitter, no I/O. Callers that want jitter wrap Delay's result themselves.
type RetryPolicy struct {
	baseDelay   time.Duration
	maxAttempts int
}

// RetryPolicyOptions configures a RetryPolicy. Zero values fall back to the
// documented defaults (60s base delay, 5 max attempts).
type RetryPolicyOptions struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// NewRetryPolicy constructs a RetryPolicy, defaulting unset options.
func NewRetryPolicy(opts RetryPolicyOptions) (*RetryPolicy, error) {
	baseDelay := opts.BaseDelay
	if baseDelay == 0 {
		baseDelay = 60 * time.Second
	}
	if baseDelay < 0 {
		return nil, ErrInvalidBaseDelay
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	if maxAttempts < 0 {
		return nil, ErrInvalidMaxAttempts
	}

	return &RetryPolicy{baseDelay: baseDelay, maxAttempts: maxAttempts}, nil
}

// MaxAttempts returns the configured max attempts.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Delay returns the backoff duration for the just-completed failure, where
// attempts is the 1-based count of attempts made so far (including the one
// that just failed): base * 2^(attempts-1).
func (p *RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return p.baseDelay * time.Duration(1<<uint(attempts-1))
}

// NextRun returns the instant at which a retried job becomes due.
func (p *RetryPolicy) NextRun(now time.Time, attempts int) time.Time {
	return now.Add(p.Delay(attempts))
}

// ShouldRetry reports whether another attempt is permitted after the given
// number of attempts have been made.
func (p *RetryPolicy) ShouldRetry(attempts int) bool {
	return attempts < p.maxAttempts
}
