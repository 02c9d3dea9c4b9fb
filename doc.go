// Package renderq provides a video-generation job engine for Go. It accepts
// generation jobs, queues them by priority lane, routes each attempt to one
// of several interchangeable providers based on live provider health, and
// drives every job through a bounded lifecycle with retry/backoff and
// stale-job recovery.
//
// RenderQ is designed as a library, not a service. Import it, configure a
// store, register providers, and submit jobs.
//
// # Quick Start
//
//	d, err := renderq.New(
//	    renderq.WithStore(pgStore),
//	    renderq.WithConcurrency(8),
//	)
//
// # Architecture
//
// RenderQ follows a composable store pattern: the job and health subsystems
// each define a narrow store interface, and a single backend (Postgres,
// Redis, or Memory) implements both. Exactly one worker may hold a job at a
// time; the claim is an atomic conditional state transition against the
// shared store, so a crashed worker can never permanently hold a job.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package renderq
