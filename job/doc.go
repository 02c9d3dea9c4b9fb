// Package job defines the Job model, its closed status enumeration, the
// lifecycle state machine, and the narrow persistence contract the engine
// requires from a backend.
//
// A job moves through a bounded lifecycle:
//
//	queued → processing → completed
//	                    → queued  (failed attempt, retries remaining)
//	                    → failed  (retries exhausted)
//	queued|processing   → cancelled
//	failed|cancelled    → queued  (explicit manual retry)
//
// completed, cancelled, and failed are terminal: a job in a terminal status
// never mutates again, except for the explicit manual-retry transition which
// is guarded by the retry budget.
package job
