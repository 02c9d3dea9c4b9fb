package health

import (
	"fmt"
	"time"
)

// Status is the derived health classification of a provider.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Record is the continuously updated reputation of one provider. Records
// are created lazily on the first observed outcome, or pre-seeded at
// startup, and never deleted during normal operation.
type Record struct {
	Provider            string        `json:"provider"`
	Status              Status        `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	AvgResponseTime     time.Duration `json:"avg_response_time"`
	LastCheckedAt       time.Time     `json:"last_checked_at"`
	CostPerRequest      float64       `json:"cost_per_request"`
}

// Thresholds configure health classification. They must be monotonic:
// the unhealthy failure threshold may not be below the degraded one.
type Thresholds struct {
	// DegradedFailures is the consecutive-failure count at which a
	// provider is classified degraded.
	DegradedFailures int

	// UnhealthyFailures is the consecutive-failure count at which a
	// provider is classified unhealthy.
	UnhealthyFailures int

	// LatencyCeiling classifies a provider as degraded when its average
	// response time exceeds it. Zero disables the latency check.
	LatencyCeiling time.Duration
}

// DefaultThresholds returns the default classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedFailures:  2,
		UnhealthyFailures: 5,
		LatencyCeiling:    30 * time.Second,
	}
}

// Validate checks threshold monotonicity.
func (t Thresholds) Validate() error {
	if t.DegradedFailures <= 0 || t.UnhealthyFailures <= 0 {
		return fmt.Errorf("health: thresholds must be positive (degraded=%d, unhealthy=%d)",
			t.DegradedFailures, t.UnhealthyFailures)
	}
	if t.UnhealthyFailures < t.DegradedFailures {
		return fmt.Errorf("health: unhealthy threshold %d below degraded threshold %d",
			t.UnhealthyFailures, t.DegradedFailures)
	}
	return nil
}

// Classify derives a status from a failure streak and latency average.
// Increasing consecutiveFailures never improves the result.
func (t Thresholds) Classify(consecutiveFailures int, avgResponseTime time.Duration) Status {
	if consecutiveFailures >= t.UnhealthyFailures {
		return StatusUnhealthy
	}
	if consecutiveFailures >= t.DegradedFailures {
		return StatusDegraded
	}
	if t.LatencyCeiling > 0 && avgResponseTime > t.LatencyCeiling {
		return StatusDegraded
	}
	return StatusHealthy
}
