// Package health tracks a live reputation for every provider from observed
// attempt outcomes. The Tracker serializes updates per provider, keeps an
// exponentially weighted latency average, and classifies each provider as
// healthy, degraded, or unhealthy against configurable monotonic
// thresholds. Selection consults these classifications on every attempt.
package health
