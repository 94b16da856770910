package dispatch

import (
	"math/rand"
	"time"
)

// Pacing computes the randomized delay between consecutive sends. The
// jitter keeps the cadence from being a fixed interval that provider
// anti-automation heuristics could fingerprint.
type Pacing struct {
	BaseDelay time.Duration
	Jitter    float64

	// uniform returns values in [0,1); swapped in tests.
	uniform func() float64
}

// NewPacing builds a policy from the job payload's raw values. A
// negative base delay is treated as zero and the jitter fraction is
// clamped into [0,1].
func NewPacing(baseDelayMs int, jitter float64) Pacing {
	if baseDelayMs < 0 {
		baseDelayMs = 0
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	return Pacing{
		BaseDelay: time.Duration(baseDelayMs) * time.Millisecond,
		Jitter:    jitter,
		uniform:   rand.Float64,
	}
}

// Delay returns base + uniform(-base*jitter, +base*jitter), never
// negative. With Jitter == 0 it returns exactly BaseDelay.
func (p Pacing) Delay() time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if p.Jitter == 0 {
		return p.BaseDelay
	}

	jitterAmount := float64(p.BaseDelay) * p.Jitter
	offset := (2*p.uniform() - 1) * jitterAmount

	delay := time.Duration(float64(p.BaseDelay) + offset)
	if delay < 0 {
		return 0
	}
	return delay
}
