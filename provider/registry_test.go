package provider_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/provider"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := provider.NewRegistry()
	if err := r.Register(provider.NewMock("mock")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, ok := r.Get("mock")
	if !ok {
		t.Fatal("Get(mock) = not found")
	}
	if p.Name() != "mock" {
		t.Errorf("Name() = %q, want %q", p.Name(), "mock")
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should report not found")
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := provider.NewRegistry()
	if err := r.Register(provider.NewMock("mock")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register(provider.NewMock("mock"))
	if !errors.Is(err, renderq.ErrProviderAlreadyExists) {
		t.Errorf("second Register = %v, want ErrProviderAlreadyExists", err)
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := provider.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(provider.NewMock(name)); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistry_RateLimit(t *testing.T) {
	r := provider.NewRegistry()
	// Burst of 1: the first request passes, an immediate second does not.
	if err := r.Register(provider.NewMock("limited"), provider.WithRateLimit(1)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !r.Allow("limited") {
		t.Fatal("first Allow should pass")
	}
	if r.Allow("limited") {
		t.Error("second immediate Allow should be rate limited")
	}
}

func TestRegistry_AllowUnlimitedAndUnknown(t *testing.T) {
	r := provider.NewRegistry()
	if err := r.Register(provider.NewMock("open")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for range 10 {
		if !r.Allow("open") {
			t.Fatal("unlimited provider should always allow")
		}
	}
	if r.Allow("ghost") {
		t.Error("unknown provider should not allow")
	}
}

func TestRegistry_Cost(t *testing.T) {
	r := provider.NewRegistry()
	if err := r.Register(provider.NewMock("paid"), provider.WithCostPerRequest(0.25)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := r.Cost("paid"); got != 0.25 {
		t.Errorf("Cost(paid) = %v, want 0.25", got)
	}
	if got := r.Cost("ghost"); got != 0 {
		t.Errorf("Cost(ghost) = %v, want 0", got)
	}
}

func TestMock_ScriptedFailuresThenSuccess(t *testing.T) {
	boom := errors.New("transient upstream error")
	m := provider.NewMock("mock", provider.WithFailures(boom, boom))

	ctx := context.Background()
	req := provider.Request{JobID: "job_test", Prompt: "ocean waves"}

	for i := range 2 {
		if _, err := m.Generate(ctx, req); !errors.Is(err, boom) {
			t.Fatalf("call %d = %v, want scripted failure", i+1, err)
		}
	}

	res, err := m.Generate(ctx, req)
	if err != nil {
		t.Fatalf("third call: %v", err)
	}
	if len(res.Output) == 0 {
		t.Error("success result should carry output")
	}
	if res.Model != "mock-video-v1" {
		t.Errorf("Model = %q, want default mock model", res.Model)
	}
	if m.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", m.Calls())
	}
}

func TestMock_HonorsContextDeadline(t *testing.T) {
	m := provider.NewMock("slow", provider.WithLatency(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Generate(ctx, provider.Request{JobID: "job_test", Prompt: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Generate = %v, want DeadlineExceeded", err)
	}
	if got := provider.Classify(err); got != provider.ReasonTimeout {
		t.Errorf("Classify = %q, want %q", got, provider.ReasonTimeout)
	}
}

func TestClassify(t *testing.T) {
	if got := provider.Classify(errors.New("boom")); got != provider.ReasonProviderError {
		t.Errorf("Classify(generic) = %q, want provider_error", got)
	}
	if got := provider.Classify(context.DeadlineExceeded); got != provider.ReasonTimeout {
		t.Errorf("Classify(deadline) = %q, want timeout", got)
	}
	if got := provider.Classify(renderq.ErrNoProviderAvailable); got != provider.ReasonNoProvider {
		t.Errorf("Classify(no provider) = %q, want no_provider_available", got)
	}
	wrapped := fmt.Errorf("attempt: %w", renderq.ErrNoProviderAvailable)
	if got := provider.Classify(wrapped); got != provider.ReasonNoProvider {
		t.Errorf("Classify(wrapped no provider) = %q, want no_provider_available", got)
	}
}
