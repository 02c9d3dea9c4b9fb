package job

import "time"

// Options configures per-job behavior such as lane, retry budget, and
// routing hints.
type Options struct {
	// Lane is the priority lane this job dispatches from.
	Lane Lane

	// MaxRetries is the maximum number of attempts before the job is
	// terminally failed.
	MaxRetries int

	// Provider optionally pins a preferred provider for selection.
	Provider string

	// Model optionally names the model the provider should use.
	Model string

	// Payload is an opaque option bag stored and returned untouched.
	Payload []byte

	// Timeout overrides the engine-wide provider call timeout when > 0.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Lane:       LaneDefault,
		MaxRetries: 3,
	}
}

// Option is a functional option for configuring a job submission.
type Option func(*Options)

// WithLane sets the priority lane for the job.
func WithLane(l Lane) Option {
	return func(o *Options) {
		o.Lane = l
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithProvider sets a preferred provider hint for selection.
func WithProvider(name string) Option {
	return func(o *Options) {
		o.Provider = name
	}
}

// WithModel sets the requested model.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithPayload attaches an opaque option bag to the job.
func WithPayload(p []byte) Option {
	return func(o *Options) {
		o.Payload = p
	}
}

// WithTimeout overrides the provider call timeout for this job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
