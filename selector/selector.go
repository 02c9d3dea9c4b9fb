// Package selector chooses a provider for a pending attempt from live
// health records: unhealthy providers are filtered out, a job's provider
// hint is preferred when usable, and the remainder rank by status, then
// average latency, then cost.
package selector

import (
	"sort"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/health"
)

// Hint carries a job's optional routing preference.
type Hint struct {
	Provider string
	Model    string
}

// Gate is an optional availability check — e.g. the provider registry's
// rate limiter. Allow may consume capacity, so the selector consults it
// only on the provider it is about to return, never while filtering. A
// denied provider is skipped for this attempt as if it did not exist.
type Gate interface {
	Allow(name string) bool
}

// Config controls selection policy.
type Config struct {
	// AllowUnhealthyFallback relaxes the unhealthy filter when every
	// candidate is unhealthy, picking the least-bad provider instead of
	// starving the queue. Disabled by default; enabling it is an explicit
	// operational choice.
	AllowUnhealthyFallback bool
}

// Selector ranks candidate providers using the health tracker.
type Selector struct {
	tracker *health.Tracker
	gate    Gate
	cfg     Config
}

// Option configures a Selector.
type Option func(*Selector)

// WithGate sets an availability gate consulted before ranking.
func WithGate(g Gate) Option {
	return func(s *Selector) { s.gate = g }
}

// WithConfig sets the selection policy.
func WithConfig(cfg Config) Option {
	return func(s *Selector) { s.cfg = cfg }
}

// New creates a Selector over the given tracker.
func New(tracker *health.Tracker, opts ...Option) *Selector {
	s := &Selector{tracker: tracker}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// candidate pairs a provider name with its health snapshot.
type candidate struct {
	name string
	rec  health.Record
}

// statusRank orders statuses for ranking: healthy before degraded before
// unhealthy.
func statusRank(s health.Status) int {
	switch s {
	case health.StatusHealthy:
		return 0
	case health.StatusDegraded:
		return 1
	case health.StatusUnhealthy:
		return 2
	}
	return 2
}

// allowed consults the gate for a provider the selector is about to
// return. Gate.Allow may consume rate-limit capacity, so it must never
// run for candidates that lose the ranking anyway.
func (s *Selector) allowed(name string) bool {
	return s.gate == nil || s.gate.Allow(name)
}

// Select picks a provider for one attempt. It returns
// renderq.ErrNoProviderAvailable when no candidate is usable; the caller
// must treat that as a transient failure, since providers recover.
func (s *Selector) Select(candidates []string, hint Hint) (string, error) {
	usable := make([]candidate, 0, len(candidates))
	unhealthy := make([]candidate, 0)

	for _, name := range candidates {
		rec, ok := s.tracker.Get(name)
		if !ok {
			// No history yet: treat as healthy.
			rec = health.Record{Provider: name, Status: health.StatusHealthy}
		}
		c := candidate{name: name, rec: rec}
		if rec.Status == health.StatusUnhealthy {
			unhealthy = append(unhealthy, c)
			continue
		}
		usable = append(usable, c)
	}

	// A hinted provider wins as long as it is not unhealthy and its gate
	// admits the request.
	if hint.Provider != "" {
		for _, c := range usable {
			if c.name == hint.Provider && s.allowed(c.name) {
				return c.name, nil
			}
		}
	}

	sort.Slice(usable, func(i, k int) bool {
		a, b := usable[i], usable[k]
		if ra, rb := statusRank(a.rec.Status), statusRank(b.rec.Status); ra != rb {
			return ra < rb
		}
		if a.rec.AvgResponseTime != b.rec.AvgResponseTime {
			return a.rec.AvgResponseTime < b.rec.AvgResponseTime
		}
		if a.rec.CostPerRequest != b.rec.CostPerRequest {
			return a.rec.CostPerRequest < b.rec.CostPerRequest
		}
		return a.name < b.name
	})

	// Walk the ranking and return the first candidate whose gate admits
	// the request. A denied candidate falls through to the next.
	for _, c := range usable {
		if s.allowed(c.name) {
			return c.name, nil
		}
	}

	// Everything is unhealthy or gated. The fallback picks the least-bad
	// unhealthy provider rather than starving the queue, but only when
	// explicitly enabled.
	if s.cfg.AllowUnhealthyFallback && len(unhealthy) > 0 {
		sort.Slice(unhealthy, func(i, k int) bool {
			a, b := unhealthy[i], unhealthy[k]
			if a.rec.ConsecutiveFailures != b.rec.ConsecutiveFailures {
				return a.rec.ConsecutiveFailures < b.rec.ConsecutiveFailures
			}
			if a.rec.AvgResponseTime != b.rec.AvgResponseTime {
				return a.rec.AvgResponseTime < b.rec.AvgResponseTime
			}
			return a.name < b.name
		})
		for _, c := range unhealthy {
			if s.allowed(c.name) {
				return c.name, nil
			}
		}
	}

	return "", renderq.ErrNoProviderAvailable
}
