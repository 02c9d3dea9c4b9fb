package backoff

import "time"

// Class partitions attempt failures for delay purposes. A no-provider
// condition clears faster than a provider-reported failure, so it retries
// on a shorter schedule.
type Class int

const (
	// ClassProviderFailure covers hard provider errors and timeouts.
	ClassProviderFailure Class = iota
	// ClassNoProvider covers attempts where selection found no usable
	// provider and no backend was called.
	ClassNoProvider
)

// Decision is the outcome of the retry policy for one failed attempt.
type Decision struct {
	// Retry is true when the job should re-queue.
	Retry bool
	// NextEligibleAt is the earliest dispatch time for the retry.
	// Meaningless when Retry is false.
	NextEligibleAt time.Time
}

// Policy decides whether a failed job retries and when it becomes eligible
// again. It is a pure function of its inputs — no hidden state — so tests
// can drive it deterministically by injecting the clock and jitter source.
type Policy struct {
	// Provider is the delay strategy for provider-reported failures.
	Provider Strategy
	// NoProvider is the (shorter) delay strategy for attempts that found
	// no usable provider.
	NoProvider Strategy
}

// DefaultPolicy returns the engine default: exponential growth from 30s
// capped at 10m with symmetric jitter for provider failures, and from 5s
// capped at 1m for no-provider conditions.
func DefaultPolicy() *Policy {
	return &Policy{
		Provider:   NewSymmetricJitter(NewExponential(30*time.Second, 10*time.Minute)),
		NoProvider: NewSymmetricJitter(NewExponential(5*time.Second, time.Minute)),
	}
}

// OnFailure decides the fate of a job after a failed attempt. retryCount
// must already include the attempt that just failed; when it has reached
// maxRetries the budget is spent and the decision is terminal.
func (p *Policy) OnFailure(retryCount, maxRetries int, class Class, now time.Time) Decision {
	if retryCount >= maxRetries {
		return Decision{Retry: false}
	}

	strategy := p.Provider
	if class == ClassNoProvider && p.NoProvider != nil {
		strategy = p.NoProvider
	}

	return Decision{
		Retry:          true,
		NextEligibleAt: now.Add(strategy.Delay(retryCount)),
	}
}
