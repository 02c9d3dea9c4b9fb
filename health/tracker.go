package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// defaultAlpha is the EWMA weight given to the newest latency sample.
const defaultAlpha = 0.3

// entry wraps one provider's record with its own lock so outcome updates
// for different providers never contend with each other.
type entry struct {
	mu  sync.Mutex
	rec Record
}

// Tracker maintains live health records for all observed providers.
// RecordOutcome is a read-modify-write serialized per provider; methods are
// safe for concurrent use from every worker.
type Tracker struct {
	thresholds Thresholds
	alpha      float64
	store      Store // optional write-through sink
	logger     *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithStore sets a persistence sink the tracker writes records through to.
func WithStore(s Store) TrackerOption {
	return func(t *Tracker) { t.store = s }
}

// WithAlpha sets the EWMA weight for new latency samples (0 < alpha <= 1).
func WithAlpha(alpha float64) TrackerOption {
	return func(t *Tracker) {
		if alpha > 0 && alpha <= 1 {
			t.alpha = alpha
		}
	}
}

// WithLogger sets the tracker's logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a Tracker with the given thresholds.
func NewTracker(thresholds Thresholds, opts ...TrackerOption) (*Tracker, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	t := &Tracker{
		thresholds: thresholds,
		alpha:      defaultAlpha,
		logger:     slog.Default(),
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// lookup returns the entry for a provider, creating it lazily.
func (t *Tracker) lookup(provider string) *entry {
	t.mu.RLock()
	e, ok := t.entries[provider]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[provider]; ok {
		return e
	}
	e = &entry{rec: Record{Provider: provider, Status: StatusHealthy}}
	t.entries[provider] = e
	return e
}

// Seed pre-creates a record for a configured provider with its cost hint,
// so selection can rank it before any outcome is observed.
func (t *Tracker) Seed(provider string, costPerRequest float64) {
	e := t.lookup(provider)
	e.mu.Lock()
	e.rec.CostPerRequest = costPerRequest
	if e.rec.Status == "" {
		e.rec.Status = StatusHealthy
	}
	e.mu.Unlock()
}

// RecordOutcome folds one attempt outcome into the provider's record:
// success resets the failure streak, failure extends it, the latency sample
// updates the rolling average, and the status is reclassified. The updated
// record is returned.
func (t *Tracker) RecordOutcome(ctx context.Context, provider string, success bool, latency time.Duration, at time.Time) Record {
	e := t.lookup(provider)

	e.mu.Lock()
	if success {
		e.rec.ConsecutiveFailures = 0
	} else {
		e.rec.ConsecutiveFailures++
	}
	if latency > 0 {
		if e.rec.AvgResponseTime == 0 {
			e.rec.AvgResponseTime = latency
		} else {
			e.rec.AvgResponseTime = time.Duration(
				t.alpha*float64(latency) + (1-t.alpha)*float64(e.rec.AvgResponseTime),
			)
		}
	}
	e.rec.LastCheckedAt = at
	e.rec.Status = t.thresholds.Classify(e.rec.ConsecutiveFailures, e.rec.AvgResponseTime)
	rec := e.rec
	e.mu.Unlock()

	t.persist(ctx, rec)
	return rec
}

// persist writes the record through to the sink, best-effort.
func (t *Tracker) persist(ctx context.Context, rec Record) {
	if t.store == nil {
		return
	}
	if err := t.store.UpsertProviderHealth(ctx, &rec); err != nil {
		t.logger.Warn("persist provider health failed",
			slog.String("provider", rec.Provider),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns the current record for a provider.
func (t *Tracker) Get(provider string) (Record, bool) {
	t.mu.RLock()
	e, ok := t.entries[provider]
	t.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	e.mu.Lock()
	rec := e.rec
	e.mu.Unlock()
	return rec, true
}

// List returns all records ordered by provider name.
func (t *Tracker) List() []Record {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		records = append(records, e.rec)
		e.mu.Unlock()
	}
	sort.Slice(records, func(i, k int) bool {
		return records[i].Provider < records[k].Provider
	})
	return records
}

// Thresholds returns the tracker's classification thresholds.
func (t *Tracker) Thresholds() Thresholds { return t.thresholds }
