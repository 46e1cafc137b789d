package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the delay before a retry attempt:
// min(initial × multiplier^(attempt−1), max), optionally perturbed by ±30%
// uniform jitter so synchronized retry storms spread out.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     bool
}

// jitterSpread is the relative width of the jitter window around the
// computed delay.
const jitterSpread = 0.3

// Delay returns the pre-jitter delay for a 1-based attempt number. It is
// non-decreasing in the attempt and capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	d := time.Duration(float64(b.Initial) * math.Pow(multiplier, float64(attempt-1)))
	if b.Max > 0 && (d > b.Max || d < 0) {
		d = b.Max
	}
	return d
}

// Next returns the delay for an attempt with jitter applied when enabled.
func (b Backoff) Next(attempt int) time.Duration {
	d := b.Delay(attempt)
	if !b.Jitter || d <= 0 {
		return d
	}
	factor := 1 - jitterSpread + rand.Float64()*2*jitterSpread
	return time.Duration(float64(d) * factor)
}
