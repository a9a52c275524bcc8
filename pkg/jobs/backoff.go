package jobs

import (
	rand "math/rand/v2"
	"time"
)

// nextBackoff returns the delay before the next retry using capped
// decorrelated jitter: the first delay is base, later delays are drawn from
// [base, prev*mult) and never exceed capDur.
func nextBackoff(prev, base time.Duration, mult float64, capDur time.Duration) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if capDur > 0 && capDur < base {
		return capDur
	}
	if prev <= 0 {
		return base
	}

	spread := time.Duration(float64(prev)*mult) - base
	if spread <= 0 {
		spread = base
	}
	next := base + time.Duration(rand.Int64N(int64(spread))) //nolint:gosec // non-crypto jitter
	if capDur > 0 && next > capDur {
		return capDur
	}
	return next
}
