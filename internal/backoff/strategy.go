// Package backoff computes the wait between retry attempts.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy returns the delay before the retry following attempt (zero based),
// given the configured base delay.
type Strategy interface {
	Delay(attempt int, base time.Duration) time.Duration
}

// Constant waits the base delay before every retry.
type Constant struct{}

// Delay implements Strategy.
func (Constant) Delay(_ int, base time.Duration) time.Duration {
	if base < 0 {
		return 0
	}
	return base
}

// ExponentialJitter multiplies the base delay by Multiplier per attempt, caps
// it at Max and adds up to Jitter (0..1) of random extra wait.
type ExponentialJitter struct {
	Multiplier float64
	Max        time.Duration
	Jitter     float64
}

// Delay implements Strategy.
func (s ExponentialJitter) Delay(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}
	multiplier := s.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	backoff := capped(float64(base)*pow(multiplier, attempt), s.Max)

	jitter := clampJitter(s.Jitter)
	if jitter > 0 {
		backoff = capped(float64(backoff)*(1+jitter*rand.Float64()), s.Max)
	}
	return backoff
}

// DecorrelatedJitter draws a delay between base and min(Max, base*3^attempt).
// See https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
type DecorrelatedJitter struct {
	Max time.Duration
}

// Delay implements Strategy.
func (s DecorrelatedJitter) Delay(attempt int, base time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	if attempt > 10 {
		attempt = 10
	}

	lower := float64(base)
	upper := lower * pow(3.0, attempt)
	if s.Max > 0 && upper > float64(s.Max) {
		upper = float64(s.Max)
	}
	if upper < lower {
		upper = lower
	}

	return capped(lower+rand.Float64()*(upper-lower), s.Max)
}

// capped converts d to a Duration no larger than limit, or than the largest
// Duration when limit is not positive.
func capped(d float64, limit time.Duration) time.Duration {
	if limit > 0 && d > float64(limit) {
		return limit
	}
	if d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
