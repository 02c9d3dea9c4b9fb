package provider

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/renderq"
)

// Reason classifies why an attempt failed. All reasons are transient from
// the engine's point of view — they drive retry/backoff, never an immediate
// terminal failure.
type Reason string

const (
	// ReasonProviderError is a hard failure reported by (or while calling)
	// a provider.
	ReasonProviderError Reason = "provider_error"
	// ReasonTimeout means the attempt exceeded its hard deadline.
	ReasonTimeout Reason = "timeout"
	// ReasonNoProvider means selection found no usable provider. No
	// backend was called; providers recover quickly, so this class
	// retries on a shorter delay.
	ReasonNoProvider Reason = "no_provider_available"
)

// Classify maps an attempt error to a failure reason.
func Classify(err error) Reason {
	if errors.Is(err, renderq.ErrNoProviderAvailable) {
		return ReasonNoProvider
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonProviderError
}

// Request is a provider-agnostic generation request.
type Request struct {
	// JobID identifies the job this attempt belongs to.
	JobID string
	// Prompt is the generation prompt.
	Prompt string
	// Model optionally names the model to use; empty lets the provider
	// pick its default.
	Model string
	// Payload is the job's opaque option bag, passed through uninspected.
	Payload []byte
}

// Result is the outcome of a successful generation.
type Result struct {
	// Output is the provider's result document (URL, asset metadata, …),
	// stored on the job verbatim.
	Output []byte
	// Model is the model that actually served the request.
	Model string
	// ProviderJobID is the provider-side identifier, when one exists.
	ProviderJobID string
	// CostUSD is the reported cost of this request, zero if unknown.
	CostUSD float64
	// Elapsed is the provider-measured generation time, zero if the
	// caller should use wall time.
	Elapsed time.Duration
}

// Provider is one external generation backend.
//
// Generate must honor ctx cancellation and deadlines: exceeding the
// attempt deadline surfaces as ctx.Err, which the engine classifies as a
// timeout failure. Probe performs one cheap synchronous health check.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
	Probe(ctx context.Context) error
}
