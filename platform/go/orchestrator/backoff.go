package orchestrator

import (
	"math/rand/v2"
	"time"
)

// DefaultBaseDelay is the delay before the first retry.
const DefaultBaseDelay = time.Second

// DefaultMaxDelay caps a single backoff wait.
const DefaultMaxDelay = 5 * time.Minute

// MaxJitter bounds the random fraction added to each delay.
const MaxJitter = 0.1

// maxShift keeps 2^attempt exact in a uint64.
const maxShift = 62

// Backoff computes base × 2^attempt × (1 + jitter), capped at Max.
type Backoff struct {
	Base time.Duration
	// Max defaults to DefaultMaxDelay.
	Max time.Duration
	// Jitter returns a fraction in [0, MaxJitter).
	Jitter func() float64
}

func defaultJitter() float64 {
	return rand.Float64() * MaxJitter
}

// Delay returns the wait before retry number attempt+1.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBaseDelay
	}
	jitter := b.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}

	limit := b.Max
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	attempt = min(max(attempt, 0), maxShift)

	j := jitter()
	if j < 0 {
		j = 0
	}
	if j >= MaxJitter {
		j = MaxJitter
	}
	d := float64(base) * float64(uint64(1)<<uint(attempt)) * (1 + j)
	if d >= float64(limit) {
		return limit
	}
	return time.Duration(d)
}
