package resilience

import (
	"sync"
	"time"
)

// RetryPolicy tracks reconnection attempts with a fixed delay and a hard
// attempt cap. The counter is monotonic across consecutive failures and only
// resets on explicit success or manual disconnect.
//
// Safe for concurrent use.
type RetryPolicy struct {
	delay       time.Duration
	maxAttempts int

	mu       sync.Mutex
	attempts int
}

// NewRetryPolicy creates a policy with the given fixed delay and attempt cap.
// Zero or negative values are replaced with defaults (2s, 5 attempts).
func NewRetryPolicy(delay time.Duration, maxAttempts int) *RetryPolicy {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &RetryPolicy{delay: delay, maxAttempts: maxAttempts}
}

// Next records one failed attempt and reports whether another retry is
// allowed, along with the delay to wait before it. When the cap is reached it
// returns (0, false).
func (p *RetryPolicy) Next() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if p.attempts > p.maxAttempts {
		return 0, false
	}
	return p.delay, true
}

// Attempts returns the number of failed attempts recorded since the last
// reset.
func (p *RetryPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Reset clears the attempt counter. Called on a successful connection or a
// manual disconnect.
func (p *RetryPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = 0
}
