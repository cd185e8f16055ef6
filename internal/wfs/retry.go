package wfs

import (
	"math"
	"time"
)

// RetryPolicy bounds the attempts of one fetch and the pause between them.
//
// The pause is Interval*Multiplier. With Exponential set it grows by another
// factor of Multiplier on every further failure.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Multiplier  float64
	Exponential bool
}

// DefaultRetryPolicy makes three attempts with a fixed one second pause.
func DefaultRetryPolicy() RetryPolicy {
	const (
		attempts   = 3
		interval   = 500 * time.Millisecond
		multiplier = 2
	)

	return RetryPolicy{MaxAttempts: attempts, Interval: interval, Multiplier: multiplier}
}

// Attempts returns the number of attempts to make, at least one.
func (p RetryPolicy) Attempts() int {
	return max(p.MaxAttempts, 1)
}

// Delay returns the pause taken after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	delay := float64(p.Interval) * multiplier
	if p.Exponential && attempt > 1 {
		delay *= math.Pow(multiplier, float64(attempt-1))
	}

	return time.Duration(delay)
}
