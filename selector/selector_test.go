package selector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/health"
	"github.com/xraph/renderq/provider"
	"github.com/xraph/renderq/selector"
)

// seedOutcomes drives a tracker into a known state per provider.
func seedOutcomes(t *testing.T, tr *health.Tracker, provider string, failures int, latency time.Duration) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	if failures == 0 {
		tr.RecordOutcome(ctx, provider, true, latency, now)
		return
	}
	for i := range failures {
		tr.RecordOutcome(ctx, provider, false, latency, now.Add(time.Duration(i)*time.Second))
	}
}

func newTracker(t *testing.T) *health.Tracker {
	t.Helper()
	tr, err := health.NewTracker(health.DefaultThresholds())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func TestSelect_FiltersUnhealthy(t *testing.T) {
	tr := newTracker(t)
	seedOutcomes(t, tr, "broken", 5, 100*time.Millisecond) // unhealthy
	seedOutcomes(t, tr, "fine", 0, 100*time.Millisecond)

	s := selector.New(tr)
	got, err := s.Select([]string{"broken", "fine"}, selector.Hint{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "fine" {
		t.Errorf("Select = %q, want %q", got, "fine")
	}
}

func TestSelect_HealthyBeforeDegraded(t *testing.T) {
	tr := newTracker(t)
	seedOutcomes(t, tr, "shaky", 2, 10*time.Millisecond) // degraded, fast
	seedOutcomes(t, tr, "steady", 0, time.Second)        // healthy, slower

	s := selector.New(tr)
	got, err := s.Select([]string{"shaky", "steady"}, selector.Hint{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "steady" {
		t.Errorf("Select = %q, want healthy %q over faster degraded", got, "steady")
	}
}

func TestSelect_RanksByLatencyThenCost(t *testing.T) {
	tr := newTracker(t)
	seedOutcomes(t, tr, "fast", 0, 50*time.Millisecond)
	seedOutcomes(t, tr, "slow", 0, 500*time.Millisecond)

	s := selector.New(tr)
	got, err := s.Select([]string{"slow", "fast"}, selector.Hint{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "fast" {
		t.Errorf("Select = %q, want lower-latency %q", got, "fast")
	}

	// Equal latency: cost breaks the tie.
	tr2 := newTracker(t)
	tr2.Seed("pricey", 0.50)
	tr2.Seed("cheap", 0.05)
	seedOutcomes(t, tr2, "pricey", 0, 100*time.Millisecond)
	seedOutcomes(t, tr2, "cheap", 0, 100*time.Millisecond)

	s2 := selector.New(tr2)
	got, err = s2.Select([]string{"pricey", "cheap"}, selector.Hint{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "cheap" {
		t.Errorf("Select = %q, want cheaper %q", got, "cheap")
	}
}

func TestSelect_PrefersHintUnlessUnhealthy(t *testing.T) {
	tr := newTracker(t)
	seedOutcomes(t, tr, "preferred", 2, time.Second) // degraded but usable
	seedOutcomes(t, tr, "better", 0, 10*time.Millisecond)

	s := selector.New(tr)
	got, err := s.Select([]string{"preferred", "better"}, selector.Hint{Provider: "preferred"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "preferred" {
		t.Errorf("Select = %q, want hinted %q", got, "preferred")
	}

	// Unhealthy hint is ignored.
	seedOutcomes(t, tr, "preferred", 5, time.Second)
	got, err = s.Select([]string{"preferred", "better"}, selector.Hint{Provider: "preferred"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "better" {
		t.Errorf("Select = %q, want %q when hint is unhealthy", got, "better")
	}
}

func TestSelect_UnknownProviderTreatedHealthy(t *testing.T) {
	tr := newTracker(t)
	s := selector.New(tr)

	got, err := s.Select([]string{"fresh"}, selector.Hint{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "fresh" {
		t.Errorf("Select = %q, want %q", got, "fresh")
	}
}

func TestSelect_NoProviderAvailable(t *testing.T) {
	tr := newTracker(t)
	seedOutcomes(t, tr, "a", 5, time.Second)
	seedOutcomes(t, tr, "b", 7, time.Second)

	s := selector.New(tr)
	_, err := s.Select([]string{"a", "b"}, selector.Hint{})
	if !errors.Is(err, renderq.ErrNoProviderAvailable) {
		t.Fatalf("Select = %v, want ErrNoProviderAvailable", err)
	}

	_, err = s.Select(nil, selector.Hint{})
	if !errors.Is(err, renderq.ErrNoProviderAvailable) {
		t.Fatalf("Select(empty) = %v, want ErrNoProviderAvailable", err)
	}
}

func TestSelect_UnhealthyFallback(t *testing.T) {
	tr := newTracker(t)
	seedOutcomes(t, tr, "bad", 7, time.Second)
	seedOutcomes(t, tr, "worse", 9, time.Second)

	s := selector.New(tr, selector.WithConfig(selector.Config{AllowUnhealthyFallback: true}))
	got, err := s.Select([]string{"worse", "bad"}, selector.Hint{})
	if err != nil {
		t.Fatalf("Select with fallback: %v", err)
	}
	if got != "bad" {
		t.Errorf("Select = %q, want least-bad %q", got, "bad")
	}

	// Fallback never fires while any usable provider exists.
	seedOutcomes(t, tr, "ok", 0, time.Second)
	got, err = s.Select([]string{"worse", "bad", "ok"}, selector.Hint{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "ok" {
		t.Errorf("Select = %q, want usable %q", got, "ok")
	}
}

type denyGate struct{ blocked string }

func (g denyGate) Allow(name string) bool { return name != g.blocked }

func TestSelect_GateSkipsProvider(t *testing.T) {
	tr := newTracker(t)
	seedOutcomes(t, tr, "limited", 0, 10*time.Millisecond)
	seedOutcomes(t, tr, "open", 0, time.Second)

	s := selector.New(tr, selector.WithGate(denyGate{blocked: "limited"}))
	got, err := s.Select([]string{"limited", "open"}, selector.Hint{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "open" {
		t.Errorf("Select = %q, want %q (gated provider skipped)", got, "open")
	}
}

type countingGate struct{ calls map[string]int }

func (g *countingGate) Allow(name string) bool {
	g.calls[name]++
	return true
}

func TestSelect_GateConsultedOnlyForChosenProvider(t *testing.T) {
	tr := newTracker(t)
	seedOutcomes(t, tr, "near", 0, 10*time.Millisecond)
	seedOutcomes(t, tr, "far", 0, time.Second)

	g := &countingGate{calls: map[string]int{}}
	s := selector.New(tr, selector.WithGate(g))

	for i := range 3 {
		got, err := s.Select([]string{"near", "far"}, selector.Hint{})
		if err != nil {
			t.Fatalf("Select %d: %v", i, err)
		}
		if got != "near" {
			t.Fatalf("Select %d = %q, want %q", i, got, "near")
		}
	}

	if g.calls["far"] != 0 {
		t.Errorf("gate consulted %d times for a never-chosen provider, want 0", g.calls["far"])
	}
	if g.calls["near"] != 3 {
		t.Errorf("gate consulted %d times for the chosen provider, want 3", g.calls["near"])
	}
}

func TestSelect_RateLimitedProviderKeepsTokensForOwnJobs(t *testing.T) {
	reg := provider.NewRegistry()
	if err := reg.Register(provider.NewMock("near")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(provider.NewMock("scarce"), provider.WithRateLimit(2)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tr := newTracker(t)
	seedOutcomes(t, tr, "near", 0, 10*time.Millisecond)
	seedOutcomes(t, tr, "scarce", 0, time.Second)

	s := selector.New(tr, selector.WithGate(reg))

	// Traffic routed to the faster provider must not drain the limited
	// provider's burst.
	for i := range 4 {
		got, err := s.Select([]string{"near", "scarce"}, selector.Hint{})
		if err != nil {
			t.Fatalf("Select %d: %v", i, err)
		}
		if got != "near" {
			t.Fatalf("Select %d = %q, want %q", i, got, "near")
		}
	}

	// Both burst tokens are still there for jobs that actually hint it.
	for i := range 2 {
		got, err := s.Select([]string{"near", "scarce"}, selector.Hint{Provider: "scarce"})
		if err != nil {
			t.Fatalf("hinted Select %d: %v", i, err)
		}
		if got != "scarce" {
			t.Errorf("hinted Select %d = %q, want %q", i, got, "scarce")
		}
	}
}

func TestSelect_FallsThroughWhenTopRankedGated(t *testing.T) {
	tr := newTracker(t)
	seedOutcomes(t, tr, "first", 0, 10*time.Millisecond)
	seedOutcomes(t, tr, "second", 0, time.Second)

	s := selector.New(tr, selector.WithGate(denyGate{blocked: "first"}))
	got, err := s.Select([]string{"first", "second"}, selector.Hint{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != "second" {
		t.Errorf("Select = %q, want next-ranked %q when the top pick is gated", got, "second")
	}
}
