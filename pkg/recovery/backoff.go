package recovery

import "time"

// BackoffKind selects how retry delays grow across attempts.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffLinear      BackoffKind = "linear"
	BackoffFixed       BackoffKind = "fixed"
)

// Backoff computes the delay before a retry attempt.
type Backoff struct {
	Kind BackoffKind
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before attempt n (zero-based):
// exponential min(base*2^n, max), linear min(base*(n+1), max), fixed base.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	switch b.Kind {
	case BackoffExponential:
		// Shift overflows past 62; everything that large is capped anyway.
		if attempt > 62 {
			return b.Max
		}

		delay := b.Base * (1 << attempt)
		if b.Max > 0 && delay > b.Max {
			return b.Max
		}

		return delay
	case BackoffLinear:
		delay := b.Base * time.Duration(attempt+1)
		if b.Max > 0 && delay > b.Max {
			return b.Max
		}

		return delay
	case BackoffFixed:
		return b.Base
	default:
		return b.Base
	}
}
