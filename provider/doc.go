// Package provider defines the capability interface for external
// video-generation backends, the failure-reason taxonomy used by the retry
// policy, and a Registry that holds configured providers with per-provider
// request rate limiting.
//
// Providers are selected per attempt; the engine never talks to a backend
// except through the Provider interface.
package provider
