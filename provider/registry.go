package provider

import (
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/renderq"
)

// entry pairs a provider with its registration-time settings.
type entry struct {
	provider Provider
	limiter  *rate.Limiter
	cost     float64
}

// RegisterOption configures a provider registration.
type RegisterOption func(*entry)

// WithRateLimit caps sustained requests per minute to the provider using a
// token bucket. Zero or negative disables rate limiting.
func WithRateLimit(requestsPerMinute int) RegisterOption {
	return func(e *entry) {
		if requestsPerMinute > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
		}
	}
}

// WithCostPerRequest records the provider's cost hint, used as a selection
// tie-break.
func WithCostPerRequest(usd float64) RegisterOption {
	return func(e *entry) {
		e.cost = usd
	}
}

// Registry holds the configured providers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a provider. Registering the same name twice returns
// ErrProviderAlreadyExists.
func (r *Registry) Register(p Provider, opts ...RegisterOption) error {
	e := &entry{provider: p}
	for _, opt := range opts {
		opt(e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[p.Name()]; exists {
		return renderq.ErrProviderAlreadyExists
	}
	r.entries[p.Name()] = e
	return nil
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Names returns all registered provider names in stable (sorted) order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cost returns the registered cost-per-request hint for a provider, zero
// if unknown.
func (r *Registry) Cost(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return 0
	}
	return e.cost
}

// Allow reports whether the provider's rate limiter permits a request now.
// A provider without a limiter always allows. Unknown providers do not.
// Allow consumes a token, so call it only when about to use the provider.
func (r *Registry) Allow(name string) bool {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.limiter == nil {
		return true
	}
	return e.limiter.Allow()
}
