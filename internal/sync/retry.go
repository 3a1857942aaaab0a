package sync

import (
	"context"
	"errors"
	"time"

	"github.com/bermanqa/qlog/internal/syncclient"
)

// RetryPolicy bounds how often a failed cycle is attempted.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt; values below 1 mean 1.
	MaxAttempts int
	// Backoff returns the wait before attempt n+1 after attempt n failed.
	Backoff func(attempt int) time.Duration
	// Retryable reports whether err is worth another attempt. Nil uses
	// DefaultRetryable.
	Retryable func(err error) bool
}

// DefaultRetryPolicy is 3 attempts with exponential backoff from 500ms, capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(500*time.Millisecond, 5*time.Second),
	}
}

// ExponentialBackoff doubles base per attempt up to max.
func ExponentialBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return min(d, max)
	}
}

// DefaultRetryable retries everything except auth rejections and cancellation.
func DefaultRetryable(err error) bool {
	switch {
	case errors.Is(err, syncclient.ErrUnauthorized),
		errors.Is(err, syncclient.ErrForbidden),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (p RetryPolicy) attempts() int {
	return max(p.MaxAttempts, 1)
}

func (p RetryPolicy) shouldRetry(attempt int, err error) bool {
	if attempt >= p.attempts() {
		return false
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	return retryable(err)
}

func (p RetryPolicy) wait(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}
