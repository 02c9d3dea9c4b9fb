// Package observability provides metrics extensions for RenderQ. The
// MetricsExtension implements lifecycle hooks to record system-wide
// counters for job submission, completion, failure, retry, cancellation,
// and provider probe events.
//
// For per-attempt metrics, see the middleware package:
// middleware.Metrics().
package observability
