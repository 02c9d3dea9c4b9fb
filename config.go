package renderq

import "time"

// Config holds configuration for the Dispatcher.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently.
	Concurrency int

	// Lanes is the dispatch order of priority lanes. Earlier lanes are
	// always drained before later ones are considered.
	Lanes []string

	// PollInterval is how often idle workers poll for eligible jobs.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often processing jobs send heartbeats.
	HeartbeatInterval time.Duration

	// StaleJobThreshold is how long a processing job may go without a
	// heartbeat before the reaper returns it to the queue.
	StaleJobThreshold time.Duration

	// ProviderTimeout is the default hard timeout for a single provider
	// call. Jobs may override it per-job.
	ProviderTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       8,
		Lanes:             []string{"high", "default", "low"},
		PollInterval:      1 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		StaleJobThreshold: 2 * time.Minute,
		ProviderTimeout:   5 * time.Minute,
	}
}
