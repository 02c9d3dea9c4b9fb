// Package backoff provides pluggable retry delay strategies and the retry
// policy that decides whether a failed job re-queues or fails terminally.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear increases the delay linearly with the attempt number.
// Delay = min(Initial * attempt, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * attempt, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	d := l.Initial * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// SymmetricJitter
// ──────────────────────────────────────────────────

// SymmetricJitter spreads a base strategy's delay uniformly over
// [0.5×d, 1.5×d]. Centering the jitter on the base delay keeps the
// expected delay unchanged while breaking up synchronized retry storms.
type SymmetricJitter struct {
	Base Strategy

	// Rand returns a uniform sample in [0, 1). Defaults to math/rand/v2;
	// inject a fixed source for deterministic tests.
	Rand func() float64
}

// NewSymmetricJitter wraps a base strategy with symmetric jitter.
func NewSymmetricJitter(base Strategy) *SymmetricJitter {
	return &SymmetricJitter{Base: base}
}

// Delay returns a random duration in [0.5×base, 1.5×base].
func (s *SymmetricJitter) Delay(attempt int) time.Duration {
	d := s.Base.Delay(attempt)
	sample := rand.Float64 //nolint:gosec // jitter intentionally uses non-crypto rand
	if s.Rand != nil {
		sample = s.Rand
	}
	factor := 0.5 + sample()
	return time.Duration(float64(d) * factor)
}
