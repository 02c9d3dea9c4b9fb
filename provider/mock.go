package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Mock is a deterministic in-process provider for development and tests.
// It can simulate latency and a scripted sequence of failures before it
// starts succeeding.
type Mock struct {
	name    string
	latency time.Duration

	mu       sync.Mutex
	failures []error
	calls    int
}

// MockOption configures a Mock provider.
type MockOption func(*Mock)

// WithLatency makes every Generate and Probe call take at least d.
func WithLatency(d time.Duration) MockOption {
	return func(m *Mock) { m.latency = d }
}

// WithFailures scripts errors to return, in order, before succeeding.
func WithFailures(errs ...error) MockOption {
	return func(m *Mock) { m.failures = append(m.failures, errs...) }
}

// NewMock creates a mock provider with the given name.
func NewMock(name string, opts ...MockOption) *Mock {
	m := &Mock{name: name}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements Provider.
func (m *Mock) Name() string { return m.name }

// Calls returns how many Generate calls the mock has received.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// nextError pops the next scripted failure, nil when the script is empty.
func (m *Mock) nextError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}

// sleep waits out the configured latency, honoring ctx.
func (m *Mock) sleep(ctx context.Context) error {
	if m.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generate implements Provider. On success it returns a small JSON document
// describing the pretend render.
func (m *Mock) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}
	if err := m.nextError(); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = "mock-video-v1"
	}
	output, err := json.Marshal(map[string]string{
		"video_url": fmt.Sprintf("mock://videos/%s.mp4", req.JobID),
		"prompt":    req.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("mock: marshal output: %w", err)
	}

	return &Result{
		Output:        output,
		Model:         model,
		ProviderJobID: "mock-" + req.JobID,
	}, nil
}

// Probe implements Provider. It consumes the same failure script as
// Generate so health tests can drive classification.
func (m *Mock) Probe(ctx context.Context) error {
	if err := m.sleep(ctx); err != nil {
		return err
	}
	return m.nextError()
}
